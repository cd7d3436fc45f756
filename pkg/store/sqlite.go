package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vanilla/proftimers/pkg/timers"
)

// SQLiteStore is a SQLite-based implementation of the summary store
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL and a busy timeout let the CLI read while a server writes
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer for SQLite to avoid lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS summaries (
		request_id TEXT PRIMARY KEY,
		event TEXT NOT NULL,
		channel TEXT NOT NULL,
		message TEXT NOT NULL,
		timers TEXT NOT NULL,
		request_elapsed_ms INTEGER,
		peak_memory INTEGER NOT NULL DEFAULT 0,
		logged_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_summaries_logged_at ON summaries(logged_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save stores or replaces a summary
func (s *SQLiteStore) Save(summary *timers.Summary) error {
	if summary.RequestID == "" {
		return ErrMissingRequestID
	}
	timersJSON, err := encodeTimers(summary)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO summaries (`+summaryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RequestID, summary.Event, summary.Channel, summary.Message, timersJSON,
		nullElapsed(summary), int64(summary.PeakMemory), summary.LoggedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save summary %s: %w", summary.RequestID, err)
	}
	return nil
}

// Get retrieves a summary by request ID
func (s *SQLiteStore) Get(requestID string) (*timers.Summary, error) {
	row := s.db.QueryRow(`SELECT `+summaryColumns+` FROM summaries WHERE request_id = ?`, requestID)
	summary, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSummaryNotFound
	}
	return summary, err
}

// Recent returns up to limit summaries, newest first
func (s *SQLiteStore) Recent(limit int) ([]*timers.Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+summaryColumns+` FROM summaries ORDER BY logged_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	return scanSummaries(rows)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HealthCheck pings the database
func (s *SQLiteStore) HealthCheck() error {
	return s.db.Ping()
}
