package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics counts notification delivery outcomes. Kept as plain atomic
// counters exposed over JSON; the delivery worker is the only producer.
type Metrics struct {
	delivered atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncDelivered() { m.delivered.Add(1) }
func (m *Metrics) IncFailed()    { m.failed.Add(1) }
func (m *Metrics) IncRetried()   { m.retried.Add(1) }

func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int64{
			"delivered": m.delivered.Load(),
			"failed":    m.failed.Load(),
			"retried":   m.retried.Load(),
		})
	})
}
