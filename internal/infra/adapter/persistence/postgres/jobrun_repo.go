package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"secdigest/internal/domain/entity"
	"secdigest/internal/repository"

	"github.com/google/uuid"
)

type JobRunRepo struct{ db *sql.DB }

func NewJobRunRepo(db *sql.DB) repository.JobRunRepository {
	return &JobRunRepo{db: db}
}

func (r *JobRunRepo) Create(ctx context.Context, run *entity.JobRun) error {
	detailsJSON, err := json.Marshal(run.Details)
	if err != nil {
		return fmt.Errorf("Create: marshal details: %w", err)
	}
	const query = `
INSERT INTO job_runs (id, job_name, status, started_at, finished_at, details, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.JobName, run.Status, run.StartedAt, run.FinishedAt, detailsJSON, run.ErrorMessage)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *JobRunRepo) Update(ctx context.Context, run *entity.JobRun) error {
	detailsJSON, err := json.Marshal(run.Details)
	if err != nil {
		return fmt.Errorf("Update: marshal details: %w", err)
	}
	const query = `
UPDATE job_runs SET status = $1, finished_at = $2, details = $3, error_message = $4
WHERE id = $5`
	_, err = r.db.ExecContext(ctx, query, run.Status, run.FinishedAt, detailsJSON, run.ErrorMessage, run.ID)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	return nil
}

func (r *JobRunRepo) Get(ctx context.Context, id uuid.UUID) (*entity.JobRun, error) {
	const query = `
SELECT id, job_name, status, started_at, finished_at, details, error_message
FROM job_runs WHERE id = $1`
	return scanJobRun(r.db.QueryRowContext(ctx, query, id))
}

func (r *JobRunRepo) GetLatest(ctx context.Context, jobName string) (*entity.JobRun, error) {
	const query = `
SELECT id, job_name, status, started_at, finished_at, details, error_message
FROM job_runs WHERE job_name = $1 ORDER BY started_at DESC LIMIT 1`
	return scanJobRun(r.db.QueryRowContext(ctx, query, jobName))
}

func scanJobRun(row *sql.Row) (*entity.JobRun, error) {
	var run entity.JobRun
	var detailsJSON []byte
	err := row.Scan(&run.ID, &run.JobName, &run.Status, &run.StartedAt, &run.FinishedAt, &detailsJSON, &run.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanJobRun: %w", err)
	}
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &run.Details); err != nil {
			return nil, fmt.Errorf("scanJobRun: unmarshal details: %w", err)
		}
	}
	return &run, nil
}
