package store

import (
	"errors"
	"time"

	"github.com/vanilla/proftimers/pkg/timers"
)

// Store persists the summaries emitted by Registry.LogAll.
// SQLite, PostgreSQL and memory stores implement this interface.
type Store interface {
	Save(s *timers.Summary) error
	Get(requestID string) (*timers.Summary, error)
	// Recent returns up to limit summaries, newest first.
	Recent(limit int) ([]*timers.Summary, error)

	Close() error
	HealthCheck() error
}

// Config holds database configuration
type Config struct {
	Type string // "memory", "sqlite" or "postgres"
	DSN  string // Connection string

	// PostgreSQL specific
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// SQLite specific
	Path string
}

// NewStore creates a store based on configuration
func NewStore(config Config) (Store, error) {
	switch config.Type {
	case "memory", "":
		return NewMemoryStore(), nil
	case "postgres", "postgresql":
		return NewPostgreSQLStore(config)
	case "sqlite":
		path := config.Path
		if path == "" {
			path = config.DSN
		}
		if path == "" {
			path = "proftimers.db"
		}
		return NewSQLiteStore(path)
	default:
		return nil, ErrUnsupportedDatabase
	}
}

// ValidateType reports whether NewStore knows the store type.
func ValidateType(typ string) error {
	switch typ {
	case "memory", "", "postgres", "postgresql", "sqlite":
		return nil
	default:
		return ErrUnsupportedDatabase
	}
}

var (
	ErrUnsupportedDatabase = errors.New("unsupported database type")
	ErrSummaryNotFound     = errors.New("summary not found")
	ErrMissingRequestID    = errors.New("summary has no request id")
)
