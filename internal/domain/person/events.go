package person

import (
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/shared"
)

// Person domain event types
const (
	EventTypePersonCreated        = "PersonCreated"
	EventTypeNameUpdated          = "NameUpdated"
	EventTypeAttributeRecorded    = "AttributeRecorded"
	EventTypeAttributeUpdated     = "AttributeUpdated"
	EventTypeAttributeInvalidated = "AttributeInvalidated"
	EventTypePersonDeactivated    = "PersonDeactivated"
	EventTypePersonReactivated    = "PersonReactivated"
	EventTypePersonDeceased       = "PersonDeceased"
	EventTypePersonMergedInto     = "PersonMergedInto"
)

// EventTypes returns every person event type
func EventTypes() []string {
	return []string{
		EventTypePersonCreated,
		EventTypeNameUpdated,
		EventTypeAttributeRecorded,
		EventTypeAttributeUpdated,
		EventTypeAttributeInvalidated,
		EventTypePersonDeactivated,
		EventTypePersonReactivated,
		EventTypePersonDeceased,
		EventTypePersonMergedInto,
	}
}

// Event is a person domain event
type Event interface {
	shared.DomainEvent
	Actor() string
	isPersonEvent()
}

// PersonCreatedEvent is published when a person record is created
type PersonCreatedEvent struct {
	shared.BaseDomainEvent
	LegalName string     `json:"legal_name"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
}

// NameUpdatedEvent is published when the legal name changes
type NameUpdatedEvent struct {
	shared.BaseDomainEvent
	PreviousName string `json:"previous_name"`
	LegalName    string `json:"legal_name"`
}

// AttributeRecordedEvent is published when a fact is added
type AttributeRecordedEvent struct {
	shared.BaseDomainEvent
	Attribute Attribute `json:"attribute"`
}

// AttributeUpdatedEvent is published when a fact is superseded. The fact in
// force at EffectiveAt is closed there and Attribute starts there.
type AttributeUpdatedEvent struct {
	shared.BaseDomainEvent
	Previous    Attribute `json:"previous"`
	Attribute   Attribute `json:"attribute"`
	EffectiveAt time.Time `json:"effective_at"`
}

// AttributeInvalidatedEvent is published when a fact stops holding
type AttributeInvalidatedEvent struct {
	shared.BaseDomainEvent
	AttributeType AttributeType `json:"attribute_type"`
	InvalidatedAt time.Time     `json:"invalidated_at"`
	Reason        string        `json:"reason,omitempty"`
}

// PersonDeactivatedEvent is published when a person is deactivated
type PersonDeactivatedEvent struct {
	shared.BaseDomainEvent
	Reason string `json:"reason"`
}

// PersonReactivatedEvent is published when a person is reactivated
type PersonReactivatedEvent struct {
	shared.BaseDomainEvent
}

// PersonDeceasedEvent is published when a death is recorded
type PersonDeceasedEvent struct {
	shared.BaseDomainEvent
	DeathDate time.Time `json:"death_date"`
}

// PersonMergedIntoEvent is published when a person is merged into another
type PersonMergedIntoEvent struct {
	shared.BaseDomainEvent
	TargetID   uuid.UUID `json:"target_id"`
	Similarity float64   `json:"similarity"`
	Forced     bool      `json:"forced,omitempty"`
}

func (*PersonCreatedEvent) isPersonEvent()        {}
func (*NameUpdatedEvent) isPersonEvent()          {}
func (*AttributeRecordedEvent) isPersonEvent()    {}
func (*AttributeUpdatedEvent) isPersonEvent()     {}
func (*AttributeInvalidatedEvent) isPersonEvent() {}
func (*PersonDeactivatedEvent) isPersonEvent()    {}
func (*PersonReactivatedEvent) isPersonEvent()    {}
func (*PersonDeceasedEvent) isPersonEvent()       {}
func (*PersonMergedIntoEvent) isPersonEvent()     {}

// eventNamespace scopes the deterministic event ids derived from command ids
var eventNamespace = uuid.MustParse("6f1c2f0e-5b7a-4c1e-9d43-2a8e7b0c9f51")

// DeriveEventID returns the id of the index-th event produced by commandID.
// Handling the same command twice yields the same ids.
func DeriveEventID(commandID uuid.UUID, index int) uuid.UUID {
	b := make([]byte, 0, 24)
	b = append(b, commandID[:]...)
	b = append(b, byte(index>>24), byte(index>>16), byte(index>>8), byte(index))
	return uuid.NewSHA1(eventNamespace, b)
}
