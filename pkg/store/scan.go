package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/vanilla/proftimers/pkg/timers"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func encodeTimers(s *timers.Summary) (string, error) {
	data, err := json.Marshal(s.Timers)
	if err != nil {
		return "", fmt.Errorf("failed to encode timers: %w", err)
	}
	return string(data), nil
}

func nullElapsed(s *timers.Summary) sql.NullInt64 {
	if s.RequestElapsedMs == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *s.RequestElapsedMs, Valid: true}
}

func scanSummary(row rowScanner) (*timers.Summary, error) {
	var (
		s          timers.Summary
		timersJSON string
		elapsed    sql.NullInt64
		peak       int64
	)
	if err := row.Scan(&s.RequestID, &s.Event, &s.Channel, &s.Message, &timersJSON, &elapsed, &peak, &s.LoggedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(timersJSON), &s.Timers); err != nil {
		return nil, fmt.Errorf("failed to decode timers of %s: %w", s.RequestID, err)
	}
	if elapsed.Valid {
		ms := elapsed.Int64
		s.RequestElapsedMs = &ms
	}
	s.PeakMemory = uint64(peak)
	return &s, nil
}

func scanSummaries(rows *sql.Rows) ([]*timers.Summary, error) {
	defer rows.Close()

	var result []*timers.Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

const summaryColumns = `request_id, event, channel, message, timers, request_elapsed_ms, peak_memory, logged_at`
