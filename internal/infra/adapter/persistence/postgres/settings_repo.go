package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"secdigest/internal/repository"
)

type SettingsRepo struct{ db *sql.DB }

func NewSettingsRepo(db *sql.DB) repository.SettingsRepository {
	return &SettingsRepo{db: db}
}

func (r *SettingsRepo) Get(ctx context.Context, key string) (interface{}, bool, error) {
	const query = `SELECT value FROM settings WHERE key = $1`
	var raw []byte
	err := r.db.QueryRowContext(ctx, query, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("Get: %w", err)
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, fmt.Errorf("Get: unmarshal value for %s: %w", key, err)
	}
	return value, true, nil
}

// Upsert writes key/value via INSERT ... ON CONFLICT, the atomic
// settings-table upsert the database layer is required to provide.
func (r *SettingsRepo) Upsert(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("Upsert: marshal value for %s: %w", key, err)
	}
	const query = `
INSERT INTO settings (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	if _, err := r.db.ExecContext(ctx, query, key, raw); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (r *SettingsRepo) Delete(ctx context.Context, key string) error {
	const query = `DELETE FROM settings WHERE key = $1`
	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

func (r *SettingsRepo) GetAll(ctx context.Context) (map[string]interface{}, error) {
	const query = `SELECT key, value FROM settings`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]interface{})
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("GetAll: scan: %w", err)
		}
		var value interface{}
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("GetAll: unmarshal value for %s: %w", key, err)
		}
		out[key] = value
	}
	return out, rows.Err()
}
