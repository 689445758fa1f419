// Package jobs owns the deferred-work pipeline: the gateway persists a job
// row and publishes its id to the broker; the settlement worker consumes,
// dispatches on a closed set of job kinds and records the outcome.
package jobs

// Kind is the closed set of job types. Dispatch is an exhaustive switch;
// anything else is marked unknown_type without invoking a handler.
type Kind string

const (
	// KindPujaseraOrder is the legacy centralized-payment path: receipts
	// and fee deductions only.
	KindPujaseraOrder Kind = "pujasera-order"
	// KindPujaseraOrderIndividual additionally threads delivery metadata
	// and accrues loyalty points under the shared venue.
	KindPujaseraOrderIndividual Kind = "pujasera-order-individual"
)

type Status string

const (
	StatusQueued      Status = "queued"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusUnknownType Status = "unknown_type"
)

// Terminal reports whether a job in this status must never be re-run.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusUnknownType:
		return true
	default:
		return false
	}
}
