package shutdown

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vanilla/proftimers/pkg/logging"
)

type closer struct{ err error }

func (c closer) Close() error { return c.err }

func TestManager_ShutdownLIFO(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.DEBUG, false)
	logger.SetOutput(&buf)

	m := New(time.Second, logger)
	var order []string
	m.Register("store", func(ctx context.Context) error {
		order = append(order, "store")
		return nil
	})
	m.Register("server", func(ctx context.Context) error {
		order = append(order, "server")
		return nil
	})
	m.Register("broken", CloseResource(closer{err: errors.New("already closed")}))

	failed := m.Shutdown()

	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"server", "store"}, order)
	assert.Contains(t, buf.String(), "Shutdown of broken failed: already closed")
	assert.Contains(t, buf.String(), "Graceful shutdown complete")
}

func TestManager_WaitWithContextCancelled(t *testing.T) {
	logger := logging.NewLogger(logging.ERROR, false)
	m := New(time.Second, logger)

	called := false
	m.Register("server", func(ctx context.Context) error {
		called = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.WaitWithContext(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, called, "cancellation still runs the shutdown functions")
}
