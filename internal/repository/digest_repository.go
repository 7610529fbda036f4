package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"secdigest/internal/domain/entity"
)

// DigestRepository persists generated digests.
type DigestRepository interface {
	// ExistsForDate reports whether a digest row already exists for date
	// (date-only comparison, matching the unique constraint on (date)).
	ExistsForDate(ctx context.Context, date time.Time) (bool, error)
	// CreateTx inserts digest inside tx, returning ErrDigestConflict if a
	// concurrent writer already inserted one for the same date (unique
	// violation on the date column).
	CreateTx(ctx context.Context, tx *sql.Tx, digest *entity.Digest) error
	// MarkNotified records that the notifier successfully dispatched digest.
	MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Digest, error)
}
