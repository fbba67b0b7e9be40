package middleware

import "context"

type contextKey struct{ name string }

var correlationIDKey = contextKey{"correlation_id"}

// WithCorrelationID returns a context carrying the request correlation id.
// The auth service reads it via GetCorrelationID when recording outbox events.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// GetCorrelationID returns the correlation id from context, or "" if unset.
func GetCorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}
