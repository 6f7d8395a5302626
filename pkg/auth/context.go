package auth

import (
	"context"
)

// Context keys for authentication data
type contextKey string

const (
	// ContextKeySubject is the context key for the authenticated subject
	ContextKeySubject contextKey = "subject"
	// ContextKeyCaps is the context key for the subject's capabilities
	ContextKeyCaps contextKey = "caps"
)

// WithSubject adds the authenticated subject to the context
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ContextKeySubject, subject)
}

// SubjectFromContext retrieves the authenticated subject from the context
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(ContextKeySubject).(string)
	return subject, ok
}

// WithCaps adds the subject's capabilities to the context
func WithCaps(ctx context.Context, caps []string) context.Context {
	return context.WithValue(ctx, ContextKeyCaps, caps)
}

// CapsFromContext retrieves the subject's capabilities from the context
func CapsFromContext(ctx context.Context) ([]string, bool) {
	caps, ok := ctx.Value(ContextKeyCaps).([]string)
	return caps, ok
}

// HasCap reports whether the context carries the given capability.
// Capabilities are flat grants; there is no inheritance between them.
func HasCap(ctx context.Context, capability string) bool {
	caps, ok := CapsFromContext(ctx)
	if !ok {
		return false
	}
	for _, c := range caps {
		if c == capability {
			return true
		}
	}
	return false
}
