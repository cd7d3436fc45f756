package timers

import "context"

type contextKey struct{}

// NewContext returns a copy of ctx carrying the registry.
func NewContext(ctx context.Context, r *Registry) context.Context {
	return context.WithValue(ctx, contextKey{}, r)
}

// FromContext returns the registry carried by ctx, if any.
func FromContext(ctx context.Context) (*Registry, bool) {
	r, ok := ctx.Value(contextKey{}).(*Registry)
	return r, ok && r != nil
}
