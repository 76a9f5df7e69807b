package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Default publication retry configuration
const (
	DefaultMaxPublishAttempts = 5
	DefaultBaseBackoff        = time.Second
)

// ErrNotDead is returned when retrying an event that still has publish
// attempts left or was already published
var ErrNotDead = fmt.Errorf("can only retry dead events: %w", ErrInvalidStateTransition)

// Publication tracks delivery of a stored event to the event bus.
// An event is appended once and may be handed to the bus several times;
// the payload never changes between attempts.
type Publication struct {
	PublishedAt   *time.Time
	Attempts      int
	LastError     string
	NextAttemptAt *time.Time
}

// IsPublished returns true once the event reached the bus
func (p *Publication) IsPublished() bool {
	return p.PublishedAt != nil
}

// IsDead returns true when the event exhausted its publish attempts
func (p *Publication) IsDead() bool {
	return !p.IsPublished() && p.Attempts >= DefaultMaxPublishAttempts
}

// MarkPublished records a successful delivery
func (p *Publication) MarkPublished(at time.Time) {
	p.PublishedAt = &at
	p.LastError = ""
	p.NextAttemptAt = nil
}

// MarkFailed records a failed delivery and schedules the next attempt
func (p *Publication) MarkFailed(errMsg string, at time.Time) {
	p.Attempts++
	p.LastError = errMsg
	if p.Attempts >= DefaultMaxPublishAttempts {
		p.NextAttemptAt = nil
		return
	}
	// Exponential backoff: 1s, 2s, 4s, 8s, ...
	next := at.Add(DefaultBaseBackoff * time.Duration(1<<uint(p.Attempts-1)))
	p.NextAttemptAt = &next
}

// ResetForRetry makes a dead event eligible for publishing again
func (p *Publication) ResetForRetry() error {
	if !p.IsDead() {
		return ErrNotDead
	}
	p.Attempts = 0
	p.LastError = ""
	p.NextAttemptAt = nil
	return nil
}

// DueAt reports whether an unpublished event should be attempted at t
func (p *Publication) DueAt(t time.Time) bool {
	if p.IsPublished() || p.IsDead() {
		return false
	}
	return p.NextAttemptAt == nil || !p.NextAttemptAt.After(t)
}

// RecordedEvent is a domain event as held by the event store
type RecordedEvent struct {
	// Position is the global append order across all aggregates
	Position    int64
	Event       DomainEvent
	RecordedAt  time.Time
	Publication Publication
}

// EventStore is the append-only log of domain events, ordered per aggregate
type EventStore interface {
	// Append stores events for aggregateID if its current version equals
	// expectedVersion, otherwise it returns a *ConcurrencyConflictError.
	Append(ctx context.Context, aggregateID uuid.UUID, expectedVersion int64, events ...DomainEvent) error
	// Load returns the events of aggregateID in version order
	Load(ctx context.Context, aggregateID uuid.UUID) ([]DomainEvent, error)
	// Version returns the current version of aggregateID (0 when unknown)
	Version(ctx context.Context, aggregateID uuid.UUID) (int64, error)
	// ReadAll returns events with a position greater than after, in append order
	ReadAll(ctx context.Context, after int64, limit int) ([]RecordedEvent, error)
	// FindUnpublished returns events due for publishing at the given time
	FindUnpublished(ctx context.Context, at time.Time, limit int) ([]RecordedEvent, error)
	// MarkPublished records successful publication of the given events
	MarkPublished(ctx context.Context, at time.Time, eventIDs ...uuid.UUID) error
	// MarkPublishFailed records a failed publish attempt for eventID
	MarkPublishFailed(ctx context.Context, eventID uuid.UUID, errMsg string, at time.Time) error
}

// DeadLetterStore gives operators access to events that exhausted their
// publish attempts
type DeadLetterStore interface {
	// FindDead returns dead events in append order
	FindDead(ctx context.Context, limit int) ([]RecordedEvent, error)
	// RetryDead makes a dead event due for publishing again
	RetryDead(ctx context.Context, eventID uuid.UUID) error
}
