package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vanilla/proftimers/pkg/logging"
)

// Manager handles graceful shutdown
type Manager struct {
	shutdownFuncs []namedFunc
	mu            sync.Mutex
	timeout       time.Duration
	logger        *logging.Logger
}

type namedFunc struct {
	name string
	fn   func(context.Context) error
}

// New creates a new shutdown manager
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	return &Manager{
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a shutdown function.
// Functions are called in reverse order (LIFO)
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownFuncs = append(m.shutdownFuncs, namedFunc{name: name, fn: fn})
}

// Shutdown executes all registered shutdown functions and returns how many failed
func (m *Manager) Shutdown() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	failed := 0
	for i := len(m.shutdownFuncs) - 1; i >= 0; i-- {
		f := m.shutdownFuncs[i]
		if err := f.fn(ctx); err != nil {
			failed++
			m.logger.Error("Shutdown of {resource} failed: {error}", map[string]interface{}{
				"resource": f.name,
				"error":    err.Error(),
			})
			continue
		}
		m.logger.Debug("Shutdown of {resource} complete", map[string]interface{}{"resource": f.name})
	}

	m.logger.Info("Graceful shutdown complete")
	return failed
}

// WaitWithContext blocks until a shutdown signal or context cancellation,
// then runs Shutdown
func (m *Manager) WaitWithContext(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.logger.Info("Received signal {signal}, shutting down", map[string]interface{}{"signal": sig.String()})
		m.Shutdown()
		return nil
	case <-ctx.Done():
		m.Shutdown()
		return ctx.Err()
	}
}

// StopHTTPServer creates a shutdown function for http.Server
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop HTTP server: %w", err)
		}
		return nil
	}
}

// CloseResource creates a shutdown function for io.Closer
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(ctx context.Context) error {
		return closer.Close()
	}
}
