package entity

import (
	"time"

	"github.com/google/uuid"
)

// JobRun status values.
const (
	JobRunStatusRunning = "running"
	JobRunStatusSuccess = "success"
	JobRunStatusError   = "error"
	JobRunStatusSkipped = "skipped"
)

// JobRun is a single append-only record of a background job's execution,
// from start() through finish().
type JobRun struct {
	ID           uuid.UUID
	JobName      string
	Status       string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Details      map[string]interface{}
	ErrorMessage *string
}
