// Package ledger records the history of upload runs.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eyes-of-azrael/azrael/internal/db"
	"github.com/eyes-of-azrael/azrael/internal/upload"
)

// Status is the outcome of an upload run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("ledger: run not found")

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// maxSummaryErrors bounds how many batch errors are kept per run.
const maxSummaryErrors = 5

// Run is one upload attempt.
type Run struct {
	ID           string     `json:"id"`
	Target       string     `json:"target"`
	DataCommit   string     `json:"dataCommit,omitempty"`
	Status       Status     `json:"status"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	Docs         int        `json:"docs"`
	Committed    int        `json:"committed"`
	Failed       int        `json:"failed"`
	Skipped      int        `json:"skipped"`
	Batches      int        `json:"batches"`
	Retries      int        `json:"retries"`
	ErrorSummary string     `json:"errorSummary,omitempty"`
}

// Duration returns how long a finished run took.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store persists runs.
type Store struct {
	db  *db.DB
	now func() time.Time
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, now: time.Now}
}

// Start inserts a running run for target.
func (s *Store) Start(ctx context.Context, target, dataCommit string, docs int) (*Run, error) {
	run := &Run{
		ID:         uuid.New().String(),
		Target:     target,
		DataCommit: dataCommit,
		Status:     StatusRunning,
		StartedAt:  s.now().UTC(),
		Docs:       docs,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO upload_runs (id, target, data_commit, status, started_at, docs)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Target, run.DataCommit, string(run.Status),
		run.StartedAt.Format(timeLayout), run.Docs,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting upload run: %w", err)
	}
	return run, nil
}

// Finish records the result of an upload on run and stores it.
func (s *Store) Finish(ctx context.Context, run *Run, res *upload.Result) error {
	finished := s.now().UTC()
	run.FinishedAt = &finished
	run.Committed = res.Committed
	run.Failed = res.Failed
	run.Skipped = res.Skipped
	run.Batches = res.Batches
	run.Retries = res.Retries
	run.Status = StatusOf(res)
	run.ErrorSummary = summarize(res.Errors)

	_, err := s.db.ExecContext(ctx, `
		UPDATE upload_runs SET
			status = ?, finished_at = ?, committed = ?, failed = ?, skipped = ?,
			batches = ?, retries = ?, error_summary = ?
		WHERE id = ?`,
		string(run.Status), finished.Format(timeLayout),
		run.Committed, run.Failed, run.Skipped, run.Batches, run.Retries,
		run.ErrorSummary, run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating upload run %s: %w", run.ID, err)
	}
	return nil
}

// StatusOf classifies an upload result.
func StatusOf(res *upload.Result) Status {
	switch {
	case res.Skipped > 0:
		return StatusCancelled
	case res.Failed > 0 && res.Committed == 0:
		return StatusFailed
	case res.Failed > 0:
		return StatusPartial
	default:
		return StatusSucceeded
	}
}

func summarize(errs []error) string {
	if len(errs) == 0 {
		return ""
	}
	lines := make([]string, 0, maxSummaryErrors+1)
	for i, err := range errs {
		if i == maxSummaryErrors {
			lines = append(lines, fmt.Sprintf("... and %d more", len(errs)-maxSummaryErrors))
			break
		}
		lines = append(lines, err.Error())
	}
	return strings.Join(lines, "\n")
}

const selectRun = `
	SELECT id, target, data_commit, status, started_at, finished_at, docs,
	       committed, failed, skipped, batches, retries, error_summary
	FROM upload_runs`

// Get returns one run.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)
	run, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading upload run %s: %w", id, err)
	}
	return run, nil
}

// List returns the most recent runs first. A limit of 0 or less means 20.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectRun+` ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing upload runs: %w", err)
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		run, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (*Run, error) {
	var (
		r        Run
		status   string
		started  string
		finished sql.NullString
	)
	err := sc.Scan(
		&r.ID, &r.Target, &r.DataCommit, &status, &started, &finished, &r.Docs,
		&r.Committed, &r.Failed, &r.Skipped, &r.Batches, &r.Retries, &r.ErrorSummary,
	)
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.StartedAt = parseTime(started)
	if finished.Valid {
		t := parseTime(finished.String)
		r.FinishedAt = &t
	}
	return &r, nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
