package readmodel

import (
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/person"
)

// PersonSummary is the list view of a person
type PersonSummary struct {
	ID             uuid.UUID             `json:"id"`
	LegalName      string                `json:"legal_name"`
	State          person.LifecycleState `json:"state"`
	Active         bool                  `json:"active"`
	AttributeCount int                   `json:"attribute_count"`
	MergedInto     *uuid.UUID            `json:"merged_into,omitempty"`
	Version        int64                 `json:"version"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// ProjectSummary maintains PersonSummary. AttributeCount counts every fact
// ever recorded, including superseded ones. Version is the last person
// version folded in.
func ProjectSummary(current *PersonSummary, e person.Event) *PersonSummary {
	if created, ok := e.(*person.PersonCreatedEvent); ok {
		return &PersonSummary{
			ID:        created.AggregateID(),
			LegalName: created.LegalName,
			State:     person.StateActive,
			Active:    true,
			Version:   created.AggregateVersion(),
			CreatedAt: created.OccurredAt(),
			UpdatedAt: created.OccurredAt(),
		}
	}
	if current == nil {
		return nil
	}

	next := *current
	switch ev := e.(type) {
	case *person.NameUpdatedEvent:
		next.LegalName = ev.LegalName
	case *person.AttributeRecordedEvent, *person.AttributeUpdatedEvent:
		next.AttributeCount++
	case *person.AttributeInvalidatedEvent:
	case *person.PersonDeactivatedEvent:
		next.State = person.StateDeactivated
	case *person.PersonReactivatedEvent:
		next.State = person.StateActive
	case *person.PersonDeceasedEvent:
		next.State = person.StateDeceased
	case *person.PersonMergedIntoEvent:
		target := ev.TargetID
		next.State = person.StateMergedInto
		next.MergedInto = &target
	default:
		return current
	}
	next.Active = next.State == person.StateActive
	next.Version = e.AggregateVersion()
	next.UpdatedAt = e.OccurredAt()
	return &next
}
