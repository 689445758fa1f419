package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/chikapos/settlement/internal/jobs"
	"github.com/chikapos/settlement/internal/store"
	"github.com/chikapos/settlement/internal/topup"
)

// Handler accepts public-catalog orders and top-up requests. Orders are
// never settled inline: the handler enqueues a job and returns its id.
type Handler struct {
	db        *gorm.DB
	publisher *jobs.Publisher
	topups    *topup.Service
}

func NewHandler(db *gorm.DB, publisher *jobs.Publisher, topups *topup.Service) *Handler {
	return &Handler{db: db, publisher: publisher, topups: topups}
}

// CreateOrder validates the cart and enqueues a settlement job.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := req.OrderPayload.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	kind := jobs.KindPujaseraOrder
	if req.Individual {
		kind = jobs.KindPujaseraOrderIndividual
	}

	slog.InfoContext(r.Context(), "enqueuing settlement job",
		"pujasera_id", req.PujaseraID, "items", len(req.Cart), "kind", string(kind))

	jobID, err := h.publisher.Enqueue(r.Context(), kind, req.OrderPayload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "enqueue_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, EnqueueResponse{JobID: jobID})
}

// GetJobByID reports the lifecycle status of one settlement job.
func (h *Handler) GetJobByID(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job_id_required", "")
		return
	}

	var job store.Job
	if err := h.db.WithContext(r.Context()).First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "job_not_found", "")
			return
		}
		writeError(w, http.StatusInternalServerError, "load_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, JobResponse{
		ID:          job.ID,
		Kind:        job.Kind,
		Status:      job.Status,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		ProcessedAt: job.ProcessedAt,
	})
}

// CreateTopUp records a pending token purchase request.
func (h *Handler) CreateTopUp(w http.ResponseWriter, r *http.Request) {
	var req CreateTopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.StoreID == "" || req.StoreName == "" || !req.TokensToAdd.IsPositive() {
		writeError(w, http.StatusBadRequest, "invalid_request", "store_id, store_name and a positive tokens_to_add are required")
		return
	}

	created, err := h.topups.Create(r.Context(), topup.CreateInput{
		StoreID:     req.StoreID,
		StoreName:   req.StoreName,
		TokensToAdd: req.TokensToAdd,
		UserID:      req.UserID,
		UserName:    req.UserName,
		ProofURL:    req.ProofURL,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, mapTopUpToResponse(created))
}

// DecideTopUp approves or rejects a pending request.
func (h *Handler) DecideTopUp(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "request_id_required", "")
		return
	}

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	var approve bool
	switch req.Decision {
	case "approve":
		approve = true
	case "reject":
		approve = false
	default:
		writeError(w, http.StatusBadRequest, "invalid_decision", "decision must be \"approve\" or \"reject\"")
		return
	}

	decided, err := h.topups.Decide(r.Context(), requestID, approve)
	if err != nil {
		switch {
		case errors.Is(err, topup.ErrNotPending):
			writeError(w, http.StatusConflict, "not_pending", "request has already been decided")
		case errors.Is(err, gorm.ErrRecordNotFound):
			writeError(w, http.StatusNotFound, "request_not_found", "")
		default:
			writeError(w, http.StatusInternalServerError, "decision_failed", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, mapTopUpToResponse(decided))
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func mapTopUpToResponse(req *store.TopUpRequest) TopUpResponse {
	return TopUpResponse{
		ID:          req.ID,
		StoreID:     req.StoreID,
		StoreName:   req.StoreName,
		Status:      req.Status,
		TokensToAdd: req.TokensToAdd,
		CreatedAt:   req.CreatedAt,
		DecidedAt:   req.DecidedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
