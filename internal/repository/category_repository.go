package repository

import (
	"context"

	"secdigest/internal/domain/entity"
)

// CategoryRepository manages the categories sources and articles are
// grouped under for digest sectioning.
type CategoryRepository interface {
	Get(ctx context.Context, id int64) (*entity.Category, error)
	List(ctx context.Context) ([]*entity.Category, error)
}
