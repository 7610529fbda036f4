package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"secdigest/internal/domain/entity"
)

func TestNoOpNotifier_NotifyDigest(t *testing.T) {
	t.Run("TC-1: should return nil without error", func(t *testing.T) {
		// Arrange
		notifier := NewNoOpNotifier()
		ctx := context.Background()

		digest := &entity.Digest{
			ID:        uuid.New(),
			Date:      time.Now(),
			Status:    entity.DigestStatusReady,
			CreatedAt: time.Now(),
		}
		sections := []entity.DigestSection{
			{Name: "security_news", Articles: []entity.Article{{ID: 1, Title: "Test Article"}}},
		}

		// Act
		err := notifier.NotifyDigest(ctx, digest, sections)

		// Assert
		if err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})

	t.Run("TC-2: should not make any HTTP requests", func(t *testing.T) {
		// Arrange
		// This test verifies the no-op behavior by ensuring the method returns immediately
		// and doesn't trigger any side effects.

		notifier := NewNoOpNotifier()
		ctx := context.Background()

		digest := &entity.Digest{
			ID:     uuid.New(),
			Date:   time.Now(),
			Status: entity.DigestStatusReady,
		}
		sections := []entity.DigestSection{
			{Name: "security_news", Articles: []entity.Article{{ID: 1, Title: "Test Article"}}},
		}

		// Act
		start := time.Now()
		err := notifier.NotifyDigest(ctx, digest, sections)
		elapsed := time.Since(start)

		// Assert
		if err != nil {
			t.Errorf("expected nil error, got %v", err)
		}

		// Should complete immediately (< 1ms) since it does nothing
		if elapsed > time.Millisecond {
			t.Errorf("expected no-op to complete immediately, but took %v", elapsed)
		}
	})

	t.Run("TC-3: should work with nil digest or sections", func(t *testing.T) {
		// Arrange
		notifier := NewNoOpNotifier()
		ctx := context.Background()

		sections := []entity.DigestSection{
			{Name: "security_news", Articles: []entity.Article{{ID: 1, Title: "Test"}}},
		}

		// Act & Assert - nil digest
		err := notifier.NotifyDigest(ctx, nil, sections)
		if err != nil {
			t.Errorf("expected nil error with nil digest, got %v", err)
		}

		// Act & Assert - nil sections
		err = notifier.NotifyDigest(ctx, &entity.Digest{ID: uuid.New(), Status: entity.DigestStatusReady}, nil)
		if err != nil {
			t.Errorf("expected nil error with nil sections, got %v", err)
		}

		// Act & Assert - both nil
		err = notifier.NotifyDigest(ctx, nil, nil)
		if err != nil {
			t.Errorf("expected nil error with both nil, got %v", err)
		}
	})

	t.Run("TC-4: should work with canceled context", func(t *testing.T) {
		// Arrange
		notifier := NewNoOpNotifier()
		ctx, cancel := context.WithCancel(context.Background())
		cancel() // Cancel immediately

		digest := &entity.Digest{
			ID:     uuid.New(),
			Status: entity.DigestStatusReady,
		}
		sections := []entity.DigestSection{
			{Name: "security_news", Articles: []entity.Article{{ID: 1, Title: "Test Article"}}},
		}

		// Act
		err := notifier.NotifyDigest(ctx, digest, sections)

		// Assert - Should still succeed even with canceled context
		if err != nil {
			t.Errorf("expected nil error even with canceled context, got %v", err)
		}
	})
}

func TestNewNoOpNotifier(t *testing.T) {
	t.Run("should create a new NoOpNotifier instance", func(t *testing.T) {
		// Act
		notifier := NewNoOpNotifier()

		// Assert
		if notifier == nil {
			t.Fatal("expected non-nil notifier")
		}
	})
}
