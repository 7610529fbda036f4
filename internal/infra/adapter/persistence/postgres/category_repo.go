package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"secdigest/internal/domain/entity"
	"secdigest/internal/repository"
)

type CategoryRepo struct{ db *sql.DB }

func NewCategoryRepo(db *sql.DB) repository.CategoryRepository {
	return &CategoryRepo{db: db}
}

func (r *CategoryRepo) Get(ctx context.Context, id int64) (*entity.Category, error) {
	const query = `SELECT id, name, digest_section, keywords FROM categories WHERE id = $1`
	cat, err := scanCategory(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return cat, nil
}

func (r *CategoryRepo) List(ctx context.Context) ([]*entity.Category, error) {
	const query = `SELECT id, name, digest_section, keywords FROM categories ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cats := make([]*entity.Category, 0, 10)
	for rows.Next() {
		var cat entity.Category
		var keywordsJSON []byte
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.DigestSection, &keywordsJSON); err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		if len(keywordsJSON) > 0 {
			if err := json.Unmarshal(keywordsJSON, &cat.Keywords); err != nil {
				return nil, fmt.Errorf("List: unmarshal keywords: %w", err)
			}
		}
		cats = append(cats, &cat)
	}
	return cats, rows.Err()
}

func scanCategory(row *sql.Row) (*entity.Category, error) {
	var cat entity.Category
	var keywordsJSON []byte
	err := row.Scan(&cat.ID, &cat.Name, &cat.DigestSection, &keywordsJSON)
	if err == sql.ErrNoRows {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(keywordsJSON) > 0 {
		if err := json.Unmarshal(keywordsJSON, &cat.Keywords); err != nil {
			return nil, fmt.Errorf("unmarshal keywords: %w", err)
		}
	}
	return &cat, nil
}
