package securityevents

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemoryStore implements Store using in-memory storage, for tests and
// database-free deployments
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewInMemoryStore creates a new in-memory event store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Append writes one event
func (s *InMemoryStore) Append(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	return nil
}

// ListByUserID returns a user's most recent events, newest first
func (s *InMemoryStore) ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []Event
	for i := len(s.events) - 1; i >= 0 && len(events) < limit; i-- {
		if s.events[i].UserID == userID {
			events = append(events, s.events[i])
		}
	}

	return events, nil
}

// All returns every recorded event in append order, for tests
func (s *InMemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// CountByType counts recorded events of one type, for tests
func (s *InMemoryStore) CountByType(eventType EventType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, event := range s.events {
		if event.EventType == eventType {
			count++
		}
	}
	return count
}
