package repository

import (
	"context"
	"database/sql"
	"time"

	"secdigest/internal/domain/entity"
)

type SourceRepository interface {
	Get(ctx context.Context, id int64) (*entity.Source, error)
	List(ctx context.Context) ([]*entity.Source, error)
	ListActive(ctx context.Context) ([]*entity.Source, error)
	Search(ctx context.Context, keyword string) ([]*entity.Source, error)
	Create(ctx context.Context, source *entity.Source) error
	Update(ctx context.Context, source *entity.Source) error
	Delete(ctx context.Context, id int64) error
	TouchCrawledAt(ctx context.Context, id int64, t time.Time) error

	// ClaimNextDue locks and returns the single most-overdue enabled source
	// that is not in excludeIDs, using SELECT ... FOR UPDATE SKIP LOCKED so
	// concurrent callers never claim the same row. Returns entity.ErrNotFound
	// when no source is currently due. The lock is held until tx commits or
	// rolls back, so callers must do so promptly.
	ClaimNextDue(ctx context.Context, tx *sql.Tx, now time.Time, excludeIDs []int64) (*entity.Source, error)

	// TouchCrawledAtTx is TouchCrawledAt scoped to an existing transaction,
	// used to release a claimed source's lock together with the fetch result.
	TouchCrawledAtTx(ctx context.Context, tx *sql.Tx, id int64, t time.Time) error

	// GetCategory returns the category a source belongs to, or nil if the
	// source has none.
	GetCategory(ctx context.Context, sourceID int64) (*entity.Category, error)
}
