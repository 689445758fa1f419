// Package joblog is a durable audit trail of job lifecycle transitions.
//
// Each row is an immutable event: you can query the log to see exactly
// where a job is (or was) and correlate it with a distributed trace via the
// trace_id column. The settlement worker appends one entry per transition.
package joblog

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Status mirrors the job lifecycle as recorded in the audit log.
type Status string

const (
	StatusStarted     Status = "STARTED"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
	StatusUnknownType Status = "UNKNOWN_TYPE"
)

// Entry is a single row in the job_logs table.
type Entry struct {
	// JobID joins the log with the job row and business data.
	JobID string

	// Kind is the job kind string as received, including unrecognized ones.
	Kind string

	Status Status

	// ErrorMessages is a JSON array of failure details, "[]" when clean.
	ErrorMessages string

	// TraceID and SpanID come from the OTel span active when the entry was
	// written, so a log row can be followed into the full trace.
	TraceID string
	SpanID  string

	UpdatedAt time.Time
}

// Repository persists log entries. Append-only: each Save is a new row.
type Repository interface {
	Save(ctx context.Context, entry *Entry) error
}

// NewEntry builds an Entry with trace identifiers extracted from ctx. When
// no span is active (unit tests, direct invocations) both ids are empty.
func NewEntry(ctx context.Context, jobID, kind string, status Status, errs []string) *Entry {
	errJSON := "[]"
	if len(errs) > 0 {
		if b, err := json.Marshal(errs); err == nil {
			errJSON = string(b)
		}
	}

	entry := &Entry{
		JobID:         jobID,
		Kind:          kind,
		Status:        status,
		ErrorMessages: errJSON,
		UpdatedAt:     time.Now().UTC(),
	}

	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		entry.TraceID = sc.TraceID().String()
		entry.SpanID = sc.SpanID().String()
	}
	return entry
}
