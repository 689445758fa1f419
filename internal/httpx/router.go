package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chikapos/settlement/internal/httpx/middlewares"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.Trace)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.Healthz)

	r.Post("/orders", handler.CreateOrder)
	r.Get("/jobs/{id}", handler.GetJobByID)

	r.Post("/topups", handler.CreateTopUp)
	r.Post("/topups/{id}/decision", handler.DecideTopUp)
	return r
}
