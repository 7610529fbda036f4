// Package notifier provides abstraction for announcing a finished digest.
// It defines the Notifier interface which allows different notification mechanisms
// (Discord, Slack, email, etc.) to be used interchangeably through dependency injection.
//
// The package includes implementations for Discord and Slack webhooks and a
// no-op notifier for when notifications are disabled.
package notifier

import (
	"context"

	"secdigest/internal/domain/entity"
)

// Notifier is an interface for announcing a digest is ready.
// Implementations should handle rate limiting, retries, and error logging internally.
type Notifier interface {
	// NotifyDigest sends a notification that digest has finished generating.
	// sections carries the rendered article groups so implementations can
	// summarize per-section counts without re-querying storage.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - digest: The digest to announce (must not be nil)
	//   - sections: The digest's rendered sections
	//
	// Returns:
	//   - error: Non-nil if the notification failed after all retry attempts
	//
	// Implementations should:
	//   - Generate a unique request ID for tracing
	//   - Apply rate limiting to prevent API abuse
	//   - Retry transient failures with exponential backoff
	//   - Log all attempts with the request ID for debugging
	//   - Respect context cancellation
	NotifyDigest(ctx context.Context, digest *entity.Digest, sections []entity.DigestSection) error
}
