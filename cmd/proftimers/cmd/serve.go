package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/vanilla/proftimers/internal/observe"
	"github.com/vanilla/proftimers/internal/report"
	"github.com/vanilla/proftimers/pkg/api"
	"github.com/vanilla/proftimers/pkg/auth"
	"github.com/vanilla/proftimers/pkg/middleware"
	"github.com/vanilla/proftimers/pkg/ratelimit"
	"github.com/vanilla/proftimers/pkg/retry"
	"github.com/vanilla/proftimers/pkg/shutdown"
	"github.com/vanilla/proftimers/pkg/store"
	"github.com/vanilla/proftimers/pkg/timers"
	"github.com/vanilla/proftimers/pkg/tracing"
)

const limiterMaxAge = 10 * time.Minute

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an HTTP server that times every request",
	Long: `Starts an HTTP server where every request gets its own timer registry.
Summaries are logged and stored, and timer metrics are exposed on /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config or :8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	addr := cfg.Serve.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	st, err := store.NewStore(cfg.Store.ToStore())
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	provider, err := tracing.InitTracer(cfg.Tracing.ToTracing(Version), logger)
	if err != nil {
		st.Close()
		return err
	}

	metrics := report.NewMetrics("proftimers", report.NewViolationLog(report.DefaultViolationLogSize))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var throttle timers.Throttle
	if cfg.Warnings.Rate > 0 {
		limiter := ratelimit.NewLimiter(cfg.Warnings.Rate, cfg.Warnings.Burst)
		go cleanupLimiters(ctx, limiter)
		throttle = limiter
	}

	router := mux.NewRouter()
	if cfg.Serve.APIKeyHash != "" {
		verifier, err := auth.NewVerifier(cfg.Serve.APIKeyHash)
		if err != nil {
			st.Close()
			return err
		}
		router.Use(auth.Middleware(verifier, "/health"))
		logger.Info("API key authentication enabled")
	}
	router.Use(tracing.HTTPMiddleware(provider))
	router.Use(middleware.Timers(middleware.Config{
		Logger:        logger,
		WarningLimits: cfg.WarningLimits(),
		CustomTimers:  cfg.Timers.Custom,
		Observer:      metrics,
		Throttle:      throttle,
		Tracer:        provider.Tracer(),
		Store:         st,
		Retry:         retry.DefaultConfig(),
		PeakMemory:    observe.PeakMemory,
		SkipPaths:     cfg.Serve.SkipPaths,
	}))
	api.NewHandler(st, metrics, logger).RegisterRoutes(router)

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Called in reverse: the server drains before the tracer and store close
	mgr := shutdown.New(cfg.Serve.ShutdownTimeout, logger)
	mgr.Register("store", shutdown.CloseResource(st))
	mgr.Register("tracer", provider.Shutdown)
	mgr.Register("http server", shutdown.StopHTTPServer(srv))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("proftimers listening on {addr}", map[string]interface{}{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			cancel()
		}
	}()

	waitErr := mgr.WaitWithContext(ctx)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	default:
	}
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return waitErr
	}
	return nil
}

func cleanupLimiters(ctx context.Context, limiter *ratelimit.Limiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.CleanupOldLimiters(limiterMaxAge); n > 0 {
				logger.Debug("Dropped {count} idle warning limiters", map[string]interface{}{"count": n})
			}
		}
	}
}
