package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/vanilla/proftimers/pkg/timers"
)

// PostgreSQLStore implements Store using PostgreSQL
type PostgreSQLStore struct {
	db *sql.DB
}

// NewPostgreSQLStore creates a new PostgreSQL store
func NewPostgreSQLStore(config Config) (*PostgreSQLStore, error) {
	dsn := config.DSN
	if dsn == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgreSQLStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS summaries (
		request_id TEXT PRIMARY KEY,
		event TEXT NOT NULL,
		channel TEXT NOT NULL,
		message TEXT NOT NULL,
		timers JSONB NOT NULL,
		request_elapsed_ms BIGINT,
		peak_memory BIGINT NOT NULL DEFAULT 0,
		logged_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_summaries_logged_at ON summaries(logged_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save stores or replaces a summary
func (s *PostgreSQLStore) Save(summary *timers.Summary) error {
	if summary.RequestID == "" {
		return ErrMissingRequestID
	}
	timersJSON, err := encodeTimers(summary)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO summaries (`+summaryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (request_id) DO UPDATE SET
			event = EXCLUDED.event,
			channel = EXCLUDED.channel,
			message = EXCLUDED.message,
			timers = EXCLUDED.timers,
			request_elapsed_ms = EXCLUDED.request_elapsed_ms,
			peak_memory = EXCLUDED.peak_memory,
			logged_at = EXCLUDED.logged_at`,
		summary.RequestID, summary.Event, summary.Channel, summary.Message, timersJSON,
		nullElapsed(summary), int64(summary.PeakMemory), summary.LoggedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save summary %s: %w", summary.RequestID, err)
	}
	return nil
}

// Get retrieves a summary by request ID
func (s *PostgreSQLStore) Get(requestID string) (*timers.Summary, error) {
	row := s.db.QueryRow(`SELECT `+summaryColumns+` FROM summaries WHERE request_id = $1`, requestID)
	summary, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSummaryNotFound
	}
	return summary, err
}

// Recent returns up to limit summaries, newest first
func (s *PostgreSQLStore) Recent(limit int) ([]*timers.Summary, error) {
	query := `SELECT ` + summaryColumns + ` FROM summaries ORDER BY logged_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	return scanSummaries(rows)
}

// Close closes the database connection
func (s *PostgreSQLStore) Close() error {
	return s.db.Close()
}

// HealthCheck pings the database
func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}
