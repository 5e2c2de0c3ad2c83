package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with in-memory storage for demo/testing.
type MemoryStore struct {
	events []*Event
	nextID int64
	mu     sync.RWMutex
}

// NewMemoryStore creates an in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AppendEvent(_ context.Context, event *Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	cp := *event
	cp.ID = s.nextID
	cp.CreatedAt = time.Now().UTC()
	s.events = append(s.events, &cp)

	event.ID = cp.ID
	event.CreatedAt = cp.CreatedAt
	return cp.ID, nil
}

func (s *MemoryStore) History(_ context.Context, accountID string, f HistoryFilter) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*Event{}
	// Iterate in reverse for descending order
	for i := len(s.events) - 1; i >= 0 && len(result) < f.Limit; i-- {
		e := s.events[i]
		if e.AccountID != accountID {
			continue
		}
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
			continue
		}
		if !f.BeforeTime.IsZero() && !olderThan(e, f.BeforeTime, f.BeforeID) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

// olderThan reports whether e sorts strictly after the (beforeTime,
// beforeID) position in newest-first order.
func olderThan(e *Event, beforeTime time.Time, beforeID int64) bool {
	if e.CreatedAt.Before(beforeTime) {
		return true
	}
	return e.CreatedAt.Equal(beforeTime) && e.ID < beforeID
}

func (s *MemoryStore) CountSince(_ context.Context, accountID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.events {
		if e.AccountID == accountID && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) DistinctGateways(_ context.Context, accountID string, eventType EventType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var gateways []string
	for _, e := range s.events {
		if e.AccountID != accountID || e.EventType != eventType || e.Gateway == "" {
			continue
		}
		if !seen[e.Gateway] {
			seen[e.Gateway] = true
			gateways = append(gateways, e.Gateway)
		}
	}
	return gateways, nil
}
