package timers

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Time runs fn between a Start and a Stop of the named timer.
//
// The timer is stopped on every exit path, including a panic, and the error
// returned by fn is passed through untouched.
func (r *Registry) Time(name string, fn func() error) error {
	return r.TimeMany([]string{name}, fn)
}

// TimeMany is Time for several timers at once.
func (r *Registry) TimeMany(names []string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("timers: time expects a function: %w", ErrInvalidArgument)
	}
	if _, err := r.StartMany(names); err != nil {
		return err
	}
	defer r.StopMany(names)

	return fn()
}

// TimeContext is Time with a context. When the registry has a tracer the call
// is wrapped in a "timer.<name>" span and fn receives the span's context.
func (r *Registry) TimeContext(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("timers: time expects a function: %w", ErrInvalidArgument)
	}
	if r.tracer == nil {
		return r.Time(name, func() error { return fn(ctx) })
	}

	return r.Time(name, func() error {
		ctx, span := r.tracer.Start(ctx, "timer."+name,
			trace.WithAttributes(attribute.String("timer.name", name)))
		defer span.End()

		err := fn(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	})
}
