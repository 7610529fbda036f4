// Package requestid propagates a per-request correlation ID through an
// http.Handler chain and into context, for log correlation across the
// health/readiness endpoints and any future admin HTTP surface.
package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	// Header is the HTTP header carrying the request ID, both inbound
	// (if the caller already has one) and outbound.
	Header = "X-Request-ID"
)

// FromContext returns the request ID stored in ctx, or "" if none.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRequestID returns a context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// Middleware assigns each request an ID, reusing one supplied via Header if
// present, sets it on the response, and stores it in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}
