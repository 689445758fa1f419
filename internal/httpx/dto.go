package httpx

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chikapos/settlement/internal/settlement/domain"
)

// CreateOrderRequest is a public-catalog cart submission. Field names match
// the payload stored on the job row, so the worker unmarshals the same
// shape it was submitted as.
type CreateOrderRequest struct {
	domain.OrderPayload

	// Individual marks a standalone-store order, which settles with loyalty
	// accrual instead of the venue fan-out semantics.
	Individual bool `json:"individual"`
}

type EnqueueResponse struct {
	JobID string `json:"job_id"`
}

type JobResponse struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

type CreateTopUpRequest struct {
	StoreID     string          `json:"store_id"`
	StoreName   string          `json:"store_name"`
	TokensToAdd decimal.Decimal `json:"tokens_to_add"`
	UserID      string          `json:"user_id"`
	UserName    string          `json:"user_name"`
	ProofURL    string          `json:"proof_url"`
}

type TopUpResponse struct {
	ID          string          `json:"id"`
	StoreID     string          `json:"store_id"`
	StoreName   string          `json:"store_name"`
	Status      string          `json:"status"`
	TokensToAdd decimal.Decimal `json:"tokens_to_add"`
	CreatedAt   time.Time       `json:"created_at"`
	DecidedAt   *time.Time      `json:"decided_at,omitempty"`
}

// DecisionRequest carries the admin verdict: "approve" or "reject".
type DecisionRequest struct {
	Decision string `json:"decision"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
