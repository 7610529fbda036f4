package repository

import (
	"context"

	"github.com/google/uuid"

	"secdigest/internal/domain/entity"
)

// JobRunRepository persists the append-only job-run ledger.
type JobRunRepository interface {
	Create(ctx context.Context, run *entity.JobRun) error
	Update(ctx context.Context, run *entity.JobRun) error
	Get(ctx context.Context, id uuid.UUID) (*entity.JobRun, error)
	GetLatest(ctx context.Context, jobName string) (*entity.JobRun, error)
}
