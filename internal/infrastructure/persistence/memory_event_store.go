package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/shared"
)

// MemoryEventStore is an in-process shared.EventStore for tests and
// single-node deployments without a database
type MemoryEventStore struct {
	mu       sync.RWMutex
	records  []shared.RecordedEvent
	byID     map[uuid.UUID]int
	versions map[uuid.UUID]int64
	now      func() time.Time
}

// NewMemoryEventStore creates an empty store
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		byID:     make(map[uuid.UUID]int),
		versions: make(map[uuid.UUID]int64),
		now:      time.Now,
	}
}

// Append stores events if the aggregate is at expectedVersion
func (s *MemoryEventStore) Append(_ context.Context, aggregateID uuid.UUID, expectedVersion int64, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	for i, ev := range events {
		if err := checkSequence(aggregateID, expectedVersion, i, ev); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current := s.versions[aggregateID]; current != expectedVersion {
		return shared.NewConcurrencyConflictError(expectedVersion, current)
	}
	for _, ev := range events {
		if _, dup := s.byID[ev.EventID()]; dup {
			return shared.NewConcurrencyConflictError(expectedVersion, s.versions[aggregateID])
		}
	}

	recordedAt := s.now().UTC()
	for _, ev := range events {
		s.records = append(s.records, shared.RecordedEvent{
			Position:   int64(len(s.records) + 1),
			Event:      ev,
			RecordedAt: recordedAt,
		})
		s.byID[ev.EventID()] = len(s.records) - 1
	}
	s.versions[aggregateID] = expectedVersion + int64(len(events))
	return nil
}

// Load returns the events of aggregateID in version order
func (s *MemoryEventStore) Load(_ context.Context, aggregateID uuid.UUID) ([]shared.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []shared.DomainEvent
	for _, rec := range s.records {
		if rec.Event.AggregateID() == aggregateID {
			events = append(events, rec.Event)
		}
	}
	return events, nil
}

// Version returns the current version of aggregateID
func (s *MemoryEventStore) Version(_ context.Context, aggregateID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[aggregateID], nil
}

// ReadAll returns events after the given position
func (s *MemoryEventStore) ReadAll(_ context.Context, after int64, limit int) ([]shared.RecordedEvent, error) {
	if limit <= 0 {
		limit = defaultReadBatch
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if after < 0 {
		after = 0
	}
	if after >= int64(len(s.records)) {
		return nil, nil
	}
	end := min(int(after)+limit, len(s.records))
	out := make([]shared.RecordedEvent, end-int(after))
	copy(out, s.records[after:end])
	return out, nil
}

// FindUnpublished returns events due for publishing at the given time
func (s *MemoryEventStore) FindUnpublished(_ context.Context, at time.Time, limit int) ([]shared.RecordedEvent, error) {
	return s.filter(limit, func(p *shared.Publication) bool { return p.DueAt(at) }), nil
}

// FindDead returns events that exhausted their publish attempts
func (s *MemoryEventStore) FindDead(_ context.Context, limit int) ([]shared.RecordedEvent, error) {
	return s.filter(limit, func(p *shared.Publication) bool { return p.IsDead() }), nil
}

// MarkPublished records successful publication of the given events
func (s *MemoryEventStore) MarkPublished(_ context.Context, at time.Time, eventIDs ...uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range eventIDs {
		if i, ok := s.byID[id]; ok {
			s.records[i].Publication.MarkPublished(at.UTC())
		}
	}
	return nil
}

// MarkPublishFailed records a failed attempt for eventID
func (s *MemoryEventStore) MarkPublishFailed(_ context.Context, eventID uuid.UUID, errMsg string, at time.Time) error {
	return s.update(eventID, func(p *shared.Publication) error {
		p.MarkFailed(errMsg, at.UTC())
		return nil
	})
}

// RetryDead makes a dead event due again
func (s *MemoryEventStore) RetryDead(_ context.Context, eventID uuid.UUID) error {
	return s.update(eventID, func(p *shared.Publication) error {
		return p.ResetForRetry()
	})
}

func (s *MemoryEventStore) update(eventID uuid.UUID, change func(*shared.Publication) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[eventID]
	if !ok {
		return fmt.Errorf("event %s: %w", eventID, shared.ErrNotFound)
	}
	return change(&s.records[i].Publication)
}

func (s *MemoryEventStore) filter(limit int, keep func(*shared.Publication) bool) []shared.RecordedEvent {
	if limit <= 0 {
		limit = defaultReadBatch
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []shared.RecordedEvent
	for i := range s.records {
		if len(out) == limit {
			break
		}
		if keep(&s.records[i].Publication) {
			out = append(out, s.records[i])
		}
	}
	return out
}

var (
	_ shared.EventStore      = (*MemoryEventStore)(nil)
	_ shared.DeadLetterStore = (*MemoryEventStore)(nil)
)
