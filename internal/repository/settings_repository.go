package repository

import "context"

// SettingsRepository persists the raw key/value envelope backing the
// settings store; validation and defaulting live in the usecase layer.
type SettingsRepository interface {
	// Get returns the stored value for key, or (nil, false, nil) if no row
	// exists (caller falls back to the key's default).
	Get(ctx context.Context, key string) (value interface{}, found bool, err error)
	// Upsert writes key/value, overwriting any prior value.
	Upsert(ctx context.Context, key string, value interface{}) error
	// Delete removes key's row, restoring the default on next Get.
	Delete(ctx context.Context, key string) error
	// GetAll returns every stored key/value pair.
	GetAll(ctx context.Context) (map[string]interface{}, error)
}
