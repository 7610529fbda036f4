// Package jobrun implements the append-only job-run ledger: start a run,
// finish it with a terminal status, and look up the latest run for a job
// name. Used by both the fetch worker and the digest scheduler to record
// one row per cycle.
package jobrun

import (
	"context"
	"fmt"
	"time"

	"secdigest/internal/domain/entity"
	"secdigest/internal/pkg/clock"

	"github.com/google/uuid"
)

// Repository is the persistence dependency (satisfied by
// repository.JobRunRepository).
type Repository interface {
	Create(ctx context.Context, run *entity.JobRun) error
	Update(ctx context.Context, run *entity.JobRun) error
	Get(ctx context.Context, id uuid.UUID) (*entity.JobRun, error)
	GetLatest(ctx context.Context, jobName string) (*entity.JobRun, error)
}

// Ledger wraps a Repository with the start/finish lifecycle, stamping
// started_at/finished_at itself so callers never construct a JobRun by
// hand.
type Ledger struct {
	Repo Repository
}

// NewLedger creates a Ledger backed by repo.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{Repo: repo}
}

// Start creates and persists a new running JobRun for jobName.
func (l *Ledger) Start(ctx context.Context, jobName string, details map[string]interface{}) (*entity.JobRun, error) {
	run := &entity.JobRun{
		ID:        uuid.New(),
		JobName:   jobName,
		Status:    entity.JobRunStatusRunning,
		StartedAt: clock.Now(),
		Details:   details,
	}
	if err := l.Repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("start job run %s: %w", jobName, err)
	}
	return run, nil
}

// Finish sets run's terminal status, finished_at, and optional details and
// error message, then persists the update. status must not be
// JobRunStatusRunning.
func (l *Ledger) Finish(ctx context.Context, run *entity.JobRun, status string, details map[string]interface{}, errMessage *string) error {
	now := clock.Now()
	run.Status = status
	run.FinishedAt = &now
	if details != nil {
		run.Details = details
	}
	run.ErrorMessage = errMessage
	if err := l.Repo.Update(ctx, run); err != nil {
		return fmt.Errorf("finish job run %s: %w", run.JobName, err)
	}
	return nil
}

// GetLatest returns the most recently started run for jobName.
func (l *Ledger) GetLatest(ctx context.Context, jobName string) (*entity.JobRun, error) {
	run, err := l.Repo.GetLatest(ctx, jobName)
	if err != nil {
		return nil, fmt.Errorf("get latest job run %s: %w", jobName, err)
	}
	return run, nil
}

// TruncateError renders err's message, cut to at most n runes, for storage
// in a JobRun's error_message column.
func TruncateError(err error, n int) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	r := []rune(msg)
	if len(r) <= n {
		return msg
	}
	return string(r[:n])
}

// ElapsedSince is a small convenience for computing a cycle's duration
// against the ledger's clock, used when building a finish() details map.
func ElapsedSince(start time.Time) time.Duration {
	return clock.Now().Sub(start)
}
