// Package sqlite provides a SQLite-backed joblog.Repository.
//
// WAL mode is enabled on Open so the worker's writes never block a reader
// inspecting the log while jobs are in flight.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chikapos/settlement/internal/jobs/joblog"

	// Pure-Go SQLite driver; no CGO, so cross-compiling the worker image
	// stays trivial.
	_ "modernc.org/sqlite"
)

// The table is append-only: one immutable row per job transition. The
// newest row per job_id is the job's last known audit state.
const schema = `
CREATE TABLE IF NOT EXISTS job_logs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id          TEXT        NOT NULL,
    kind            TEXT        NOT NULL DEFAULT '',
    status          TEXT        NOT NULL,
    error_messages  TEXT        NOT NULL DEFAULT '[]',
    trace_id        TEXT        NOT NULL DEFAULT '',
    span_id         TEXT        NOT NULL DEFAULT '',
    updated_at      TEXT        NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_job_logs_job_id ON job_logs(job_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_job_logs_trace_id ON job_logs(trace_id);
`

type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the log database and applies the schema.
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("joblog: open %q: %w", path, err)
	}

	// SQLite performs best with one writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("joblog: apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Save appends one transition row. Safe for concurrent use.
func (r *Repository) Save(ctx context.Context, entry *joblog.Entry) error {
	const q = `
		INSERT INTO job_logs
			(job_id, kind, status, error_messages, trace_id, span_id, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		entry.JobID,
		entry.Kind,
		string(entry.Status),
		entry.ErrorMessages,
		entry.TraceID,
		entry.SpanID,
		entry.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("joblog: save entry for %q: %w", entry.JobID, err)
	}
	return nil
}

// GetLatest returns the newest entry for a job id.
func (r *Repository) GetLatest(ctx context.Context, jobID string) (*joblog.Entry, error) {
	const q = `
		SELECT job_id, kind, status, error_messages, trace_id, span_id, updated_at
		FROM   job_logs
		WHERE  job_id = ?
		ORDER  BY updated_at DESC, id DESC
		LIMIT  1`

	row := r.db.QueryRowContext(ctx, q, jobID)

	var entry joblog.Entry
	var updatedAt string
	err := row.Scan(
		&entry.JobID,
		&entry.Kind,
		&entry.Status,
		&entry.ErrorMessages,
		&entry.TraceID,
		&entry.SpanID,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("joblog: job %q not found", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("joblog: get latest for %q: %w", jobID, err)
	}

	entry.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("joblog: parse time %q: %w", updatedAt, err)
	}
	return &entry, nil
}
