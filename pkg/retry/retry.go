package retry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxRetries     int           // Maximum number of retry attempts
	InitialBackoff time.Duration // Initial backoff duration
	MaxBackoff     time.Duration // Maximum backoff duration
	Multiplier     float64       // Backoff multiplier (exponential)

	// Retryable decides whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(error) bool

	// OnRetry, if set, is called before each wait with the retry number
	OnRetry func(retry int, err error, backoff time.Duration)
}

// DefaultConfig returns defaults suited to persisting a summary after a
// request: a few quick attempts, never holding a request for long.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
		Retryable:      IsRetryable,
	}
}

// Do calls fn until it succeeds, returns an error Retryable rejects, or
// MaxRetries retries are spent. Backoff grows by Multiplier up to MaxBackoff.
func Do(ctx context.Context, config Config, fn func() error) error {
	backoff := config.InitialBackoff
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		lastErr = fn()
		switch {
		case lastErr == nil:
			return nil
		case config.Retryable != nil && !config.Retryable(lastErr):
			return lastErr
		case attempt >= config.MaxRetries:
			return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxRetries, lastErr)
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt+1, lastErr, backoff)
		}
		if err := wait(ctx, backoff); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
		backoff = next(backoff, config)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func next(backoff time.Duration, config Config) time.Duration {
	if config.Multiplier > 0 {
		backoff = time.Duration(float64(backoff) * config.Multiplier)
	}
	if config.MaxBackoff > 0 && backoff > config.MaxBackoff {
		backoff = config.MaxBackoff
	}
	return backoff
}

// IsRetryable checks if an error is transient
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	retryableErrors := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"database is locked",
		"database table is locked",
		"busy",
		"eof",
		"broken pipe",
	}

	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}

	return false
}
