package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent represents an event that occurred in the domain
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
	// AggregateVersion is the version the aggregate reaches once this event is applied
	AggregateVersion() int64
}

// VersionedEvent extends DomainEvent with schema versioning support
type VersionedEvent interface {
	DomainEvent
	// SchemaVersion returns the version of the event schema (e.g., 1, 2, 3)
	SchemaVersion() int
}

// BaseDomainEvent provides common fields for all domain events
type BaseDomainEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	AggID     uuid.UUID `json:"aggregate_id"`
	AggType   string    `json:"aggregate_type"`
	Sequence  int64     `json:"aggregate_version"`
	ActorID   string    `json:"actor,omitempty"`
	Version   int       `json:"schema_version,omitempty"`
}

// EventID returns the unique event identifier
func (e *BaseDomainEvent) EventID() uuid.UUID {
	return e.ID
}

// EventType returns the type of the event
func (e *BaseDomainEvent) EventType() string {
	return e.Type
}

// OccurredAt returns when the event occurred
func (e *BaseDomainEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID returns the ID of the aggregate that produced this event
func (e *BaseDomainEvent) AggregateID() uuid.UUID {
	return e.AggID
}

// AggregateType returns the type of the aggregate
func (e *BaseDomainEvent) AggregateType() string {
	return e.AggType
}

// AggregateVersion returns the aggregate version reached by this event
func (e *BaseDomainEvent) AggregateVersion() int64 {
	return e.Sequence
}

// Actor returns who caused the event, if known
func (e *BaseDomainEvent) Actor() string {
	return e.ActorID
}

// SchemaVersion returns the schema version of the event
// Returns 1 if no version is set
func (e *BaseDomainEvent) SchemaVersion() int {
	if e.Version == 0 {
		return 1
	}
	return e.Version
}

// NewBaseDomainEvent creates a base domain event. Identity and time are
// supplied by the caller so that deriving events stays deterministic.
func NewBaseDomainEvent(id uuid.UUID, eventType, aggType string, aggID uuid.UUID, sequence int64, at time.Time, actor string) BaseDomainEvent {
	return BaseDomainEvent{
		ID:        id,
		Type:      eventType,
		Timestamp: at,
		AggID:     aggID,
		AggType:   aggType,
		Sequence:  sequence,
		ActorID:   actor,
		Version:   1,
	}
}
