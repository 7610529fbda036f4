// Package settings implements the key/value settings store: typed
// defaults, validation, and reset-to-default, backed by
// internal/repository.SettingsRepository.
package settings

import (
	"context"
	"fmt"

	"secdigest/internal/domain/entity"
)

// Recognized setting keys.
const (
	KeyFetchIntervalMinutes  = "fetch_interval_minutes"
	KeyFetchWorkerCount      = "fetch_worker_count"
	KeyDigestTime            = "digest_time"
	KeyTelegramNotifications = "telegram_notifications"
	KeyDigestSections        = "digest_sections"
	KeySummarizerProvider    = "summarizer_provider"
	KeySummarizerTier        = "summarizer_tier"
)

// ErrUnknownSetting is returned by Get/Set/Reset for a key not in the
// recognized set below.
var ErrUnknownSetting = entity.ErrUnknownSetting

// ErrBadValue is returned by Set when value doesn't match the key's type
// or, for enum-constrained keys, isn't one of Options.
var ErrBadValue = entity.ErrBadValue

// definition describes one recognized setting's type, default, and valid
// options (for enum/multiselect keys).
type definition struct {
	Type        string
	Default     interface{}
	Description string
	Options     []string
}

var digestSectionOptions = []string{"security_news", "product_news", "market", "research"}
var summarizerProviderOptions = []string{"anthropic", "openai", "google", "ollama"}
var summarizerTierOptions = []string{"fast", "smart", "smartest"}

var definitions = map[string]definition{
	KeyFetchIntervalMinutes: {
		Type:        entity.SettingTypeNumber,
		Default:     float64(60),
		Description: "Default cadence hint for admin UI (not the per-source interval).",
	},
	KeyFetchWorkerCount: {
		Type:        entity.SettingTypeNumber,
		Default:     float64(3),
		Description: "Number of fetch-worker processes the external supervisor should run.",
	},
	KeyDigestTime: {
		Type:        entity.SettingTypeTime,
		Default:     "08:00",
		Description: "Time of day at which the digest scheduler fires (HH:MM, UTC).",
	},
	KeyTelegramNotifications: {
		Type:        entity.SettingTypeBoolean,
		Default:     true,
		Description: "Whether to attempt notification after digest generation.",
	},
	KeyDigestSections: {
		Type:        entity.SettingTypeMultiselect,
		Default:     []interface{}{"security_news", "product_news", "market"},
		Description: "Which sections the digest includes.",
		Options:     digestSectionOptions,
	},
	KeySummarizerProvider: {
		Type:        entity.SettingTypeMultiselect,
		Default:     "ollama",
		Description: "Selects summarizer backend.",
		Options:     summarizerProviderOptions,
	},
	KeySummarizerTier: {
		Type:        entity.SettingTypeMultiselect,
		Default:     "fast",
		Description: "Selects model size.",
		Options:     summarizerTierOptions,
	},
}

// Repository is the persistence dependency, narrowed to the methods this
// service calls (satisfied by repository.SettingsRepository).
type Repository interface {
	Get(ctx context.Context, key string) (value interface{}, found bool, err error)
	Upsert(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string]interface{}, error)
}

// Service implements the settings store's four operations over a
// Repository, applying type/enum validation the repository itself doesn't
// know about.
type Service struct {
	Repo Repository
}

// NewService creates a settings Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{Repo: repo}
}

// Get returns key's current value (or its default, with IsDefault=true, if
// no row is stored) along with its description, type, and options.
func (s *Service) Get(ctx context.Context, key string) (*entity.Setting, error) {
	def, ok := definitions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}

	value, found, err := s.Repo.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get setting %s: %w", key, err)
	}
	if !found {
		value = def.Default
	}

	return &entity.Setting{
		Key:         key,
		Value:       value,
		Default:     def.Default,
		Description: def.Description,
		Type:        def.Type,
		Options:     def.Options,
		IsDefault:   !found,
	}, nil
}

// Set validates value against key's type (and Options, for enum keys) and
// upserts it.
func (s *Service) Set(ctx context.Context, key string, value interface{}) error {
	def, ok := definitions[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	if err := validate(def, value); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadValue, key, err)
	}
	if err := s.Repo.Upsert(ctx, key, value); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// Reset deletes key's stored row, so the next Get returns its default.
func (s *Service) Reset(ctx context.Context, key string) error {
	if _, ok := definitions[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	if err := s.Repo.Delete(ctx, key); err != nil {
		return fmt.Errorf("reset setting %s: %w", key, err)
	}
	return nil
}

// GetAll returns every recognized setting with its current (or default)
// value.
func (s *Service) GetAll(ctx context.Context) ([]entity.Setting, error) {
	stored, err := s.Repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("get all settings: %w", err)
	}

	out := make([]entity.Setting, 0, len(definitions))
	for key, def := range definitions {
		value, found := stored[key]
		if !found {
			value = def.Default
		}
		out = append(out, entity.Setting{
			Key:         key,
			Value:       value,
			Default:     def.Default,
			Description: def.Description,
			Type:        def.Type,
			Options:     def.Options,
			IsDefault:   !found,
		})
	}
	return out, nil
}

func validate(def definition, value interface{}) error {
	switch def.Type {
	case entity.SettingTypeNumber:
		switch value.(type) {
		case int, int64, float64:
		default:
			return fmt.Errorf("expected a number, got %T", value)
		}
	case entity.SettingTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected a boolean, got %T", value)
		}
	case entity.SettingTypeTime:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected an HH:MM string, got %T", value)
		}
		if _, _, err := parseHHMM(s); err != nil {
			return err
		}
	case entity.SettingTypeMultiselect:
		return validateMultiselect(def, value)
	case entity.SettingTypeText:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected a string, got %T", value)
		}
	default:
		return fmt.Errorf("unrecognized setting type %q", def.Type)
	}
	return nil
}

// validateMultiselect handles both true multiselect (digest_sections, a
// list of values) and single-enum-from-options keys (summarizer_provider,
// summarizer_tier), which share the multiselect type but store a single
// string rather than a list.
func validateMultiselect(def definition, value interface{}) error {
	if len(def.Options) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(def.Options))
	for _, opt := range def.Options {
		allowed[opt] = true
	}

	switch v := value.(type) {
	case string:
		if !allowed[v] {
			return fmt.Errorf("%q is not one of %v", v, def.Options)
		}
		return nil
	case []interface{}:
		for _, item := range v {
			s, ok := item.(string)
			if !ok || !allowed[s] {
				return fmt.Errorf("%v is not a valid subset of %v", v, def.Options)
			}
		}
		return nil
	case []string:
		for _, s := range v {
			if !allowed[s] {
				return fmt.Errorf("%q is not one of %v", s, def.Options)
			}
		}
		return nil
	default:
		return fmt.Errorf("expected a string or list of strings, got %T", value)
	}
}

func parseHHMM(s string) (int, int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, fmt.Errorf("invalid time format %q, want HH:MM", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid time %q, want 00:00-23:59", s)
	}
	return h, m, nil
}
