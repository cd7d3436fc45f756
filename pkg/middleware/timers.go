package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/vanilla/proftimers/pkg/logging"
	"github.com/vanilla/proftimers/pkg/retry"
	"github.com/vanilla/proftimers/pkg/store"
	"github.com/vanilla/proftimers/pkg/timers"
	"github.com/vanilla/proftimers/pkg/tracing"
)

// RequestIDHeader carries the request id on the response, and on the request
// when a caller supplies its own.
const RequestIDHeader = "X-Request-Id"

// Config wires the per-request registries to the process-wide sinks.
type Config struct {
	Logger        *logging.Logger
	WarningLimits map[string]time.Duration
	CustomTimers  []string
	Observer      timers.Observer
	Throttle      timers.Throttle
	Tracer        trace.Tracer
	Store         store.Store
	Retry         retry.Config
	PeakMemory    func() (uint64, error)
	Now           func() time.Time

	// SkipPaths are served without a registry
	SkipPaths []string
}

// Timers gives every request its own timer registry.
//
// The registry is available to handlers through timers.FromContext. When the
// handler returns, every running timer is stopped, the summary is logged
// with the route template as event name and saved to the store.
func Timers(cfg Config) func(http.Handler) http.Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := cfg.Now()
			requestID := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			reg := cfg.newRegistry()
			// Deferred so a panicking handler still gets its summary; the
			// panic carries on to net/http afterwards.
			defer cfg.finish(r, reg, start, requestID)

			next.ServeHTTP(w, r.WithContext(timers.NewContext(r.Context(), reg)))
		})
	}
}

// finish stops the request's timers, then logs and stores its summary.
func (cfg Config) finish(r *http.Request, reg *timers.Registry, start time.Time, requestID string) {
	reg.StopAll()

	opts := []timers.LogOption{
		timers.WithRequestStart(start),
		timers.WithRequestID(requestID),
	}
	if cfg.PeakMemory != nil {
		if peak, err := cfg.PeakMemory(); err == nil {
			opts = append(opts, timers.WithPeakMemory(peak))
		}
	}

	var logger timers.Logger
	if cfg.Logger != nil {
		logger = cfg.Logger
	}
	summary := reg.LogAll(logger, tracing.RouteName(r), opts...)

	if cfg.Store != nil {
		cfg.save(r.Context(), &summary)
	}
}

func (cfg Config) newRegistry() *timers.Registry {
	opts := []timers.Option{
		timers.WithClock(cfg.Now),
		timers.WithWarningLimits(cfg.WarningLimits),
		timers.WithCustomTimers(cfg.CustomTimers...),
	}
	if cfg.Logger != nil {
		opts = append(opts, timers.WithLogger(cfg.Logger))
	}
	if cfg.Observer != nil {
		opts = append(opts, timers.WithObserver(cfg.Observer))
	}
	if cfg.Throttle != nil {
		opts = append(opts, timers.WithThrottle(cfg.Throttle))
	}
	if cfg.Tracer != nil {
		opts = append(opts, timers.WithTracer(cfg.Tracer))
	}
	return timers.New(opts...)
}

// save never fails the request; persistence problems are only logged.
func (cfg Config) save(ctx context.Context, summary *timers.Summary) {
	// The client may be gone already; the summary is still worth keeping.
	ctx = context.WithoutCancel(ctx)

	rc := cfg.Retry
	if rc.OnRetry == nil && cfg.Logger != nil {
		rc.OnRetry = func(n int, err error, backoff time.Duration) {
			cfg.Logger.Debug("Retrying save of timer summary {request_id} ({retry}): {error}", map[string]interface{}{
				"request_id": summary.RequestID,
				"retry":      n,
				"error":      err.Error(),
			})
		}
	}

	err := retry.Do(ctx, rc, func() error {
		return cfg.Store.Save(summary)
	})
	if err != nil && cfg.Logger != nil {
		cfg.Logger.Error("Failed to save timer summary {request_id}: {error}", map[string]interface{}{
			"request_id": summary.RequestID,
			"error":      err.Error(),
		})
	}
}
