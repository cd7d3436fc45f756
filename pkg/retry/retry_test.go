package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	return cfg
}

func TestDo_SucceedsAfterTransientErrors(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("constraint failed")
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestDo_GivesUp(t *testing.T) {
	cfg := fastConfig()
	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errors.New("connection refused")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max retries (3) exceeded")
	assert.Equal(t, cfg.MaxRetries+1, attempts)
}

func TestDo_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fastConfig(), func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{errors.New("database is locked"), true},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, IsRetryable(tt.err), "%v", tt.err)
	}
}

func TestDo_OnRetryAndBackoffGrowth(t *testing.T) {
	cfg := Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     3 * time.Millisecond,
		Multiplier:     2,
	}
	var retries []int
	var backoffs []time.Duration
	cfg.OnRetry = func(retry int, err error, backoff time.Duration) {
		retries = append(retries, retry)
		backoffs = append(backoffs, backoff)
	}

	_ = Do(context.Background(), cfg, func() error { return errors.New("always") })

	assert.Equal(t, []int{1, 2, 3}, retries)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}, backoffs)
}
