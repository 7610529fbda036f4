package notify

import "errors"

// Sentinel errors for notify use case operations.
var (
	// ErrChannelDisabled indicates that Send() was called on a disabled channel.
	// This error is returned when attempting to send a notification through a channel
	// that is not enabled in the configuration.
	ErrChannelDisabled = errors.New("channel is disabled")

	// ErrInvalidDigest indicates that the digest passed to Send is nil.
	ErrInvalidDigest = errors.New("invalid digest data")

	// ErrNotificationDropped indicates that a notification was dropped due to
	// goroutine pool saturation or timeout waiting for a worker slot.
	// This is a non-critical error used for observability.
	ErrNotificationDropped = errors.New("notification dropped due to pool saturation")

	// ErrCircuitBreakerOpen indicates that the circuit breaker is open for this channel
	// and notifications are being rejected to prevent continuous failures.
	// The circuit breaker will automatically close after the timeout period.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open for this channel")
)
