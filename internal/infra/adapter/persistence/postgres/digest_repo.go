package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"secdigest/internal/domain/entity"
	"secdigest/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// postgresUniqueViolation is the SQLSTATE code for a unique-constraint
// violation, used here to detect two processes racing to insert the same
// digest date.
const postgresUniqueViolation = "23505"

type DigestRepo struct{ db *sql.DB }

func NewDigestRepo(db *sql.DB) repository.DigestRepository {
	return &DigestRepo{db: db}
}

func (r *DigestRepo) ExistsForDate(ctx context.Context, date time.Time) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM digests WHERE date = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, date.UTC().Format("2006-01-02")).Scan(&exists); err != nil {
		return false, fmt.Errorf("ExistsForDate: %w", err)
	}
	return exists, nil
}

// CreateTx inserts d inside tx. A unique violation on the date column
// (another process already generated today's digest) is surfaced as
// entity.ErrDigestConflict so the scheduler can treat it as "skipped"
// rather than a hard failure.
func (r *DigestRepo) CreateTx(ctx context.Context, tx *sql.Tx, d *entity.Digest) error {
	const query = `
INSERT INTO digests (id, date, status, html_path, created_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := tx.ExecContext(ctx, query,
		d.ID, d.Date.UTC().Format("2006-01-02"), d.Status, d.HTMLPath, d.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation {
			return entity.ErrDigestConflict
		}
		return fmt.Errorf("CreateTx: %w", err)
	}
	return nil
}

func (r *DigestRepo) MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `UPDATE digests SET notified_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("MarkNotified: %w", err)
	}
	return nil
}

func (r *DigestRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Digest, error) {
	const query = `SELECT id, date, status, html_path, created_at, notified_at FROM digests WHERE id = $1`
	var d entity.Digest
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.Date, &d.Status, &d.HTMLPath, &d.CreatedAt, &d.NotifiedAt)
	if err == sql.ErrNoRows {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &d, nil
}
