package store

import (
	"sort"
	"sync"

	"github.com/vanilla/proftimers/pkg/timers"
)

// MemoryStore is an in-memory implementation of the summary store
type MemoryStore struct {
	summaries map[string]*timers.Summary
	order     []string
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		summaries: make(map[string]*timers.Summary),
	}
}

// Save stores or replaces a summary
func (s *MemoryStore) Save(summary *timers.Summary) error {
	if summary.RequestID == "" {
		return ErrMissingRequestID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.summaries[summary.RequestID]; !exists {
		s.order = append(s.order, summary.RequestID)
	}
	cp := *summary
	s.summaries[summary.RequestID] = &cp
	return nil
}

// Get retrieves a summary by request ID
func (s *MemoryStore) Get(requestID string) (*timers.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[requestID]
	if !ok {
		return nil, ErrSummaryNotFound
	}
	cp := *summary
	return &cp, nil
}

// Recent returns up to limit summaries, newest first
func (s *MemoryStore) Recent(limit int) ([]*timers.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*timers.Summary, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		cp := *s.summaries[s.order[i]]
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LoggedAt.After(result[j].LoggedAt)
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}

// HealthCheck always succeeds for the memory store
func (s *MemoryStore) HealthCheck() error {
	return nil
}
