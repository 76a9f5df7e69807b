package readmodel

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/person"
)

// TimelineEntry describes one event in a person's history
type TimelineEntry struct {
	EventID       uuid.UUID `json:"event_id"`
	Version       int64     `json:"version"`
	EventType     string    `json:"event_type"`
	OccurredAt    time.Time `json:"occurred_at"`
	Actor         string    `json:"actor,omitempty"`
	AttributeType string    `json:"attribute_type,omitempty"`
	Summary       string    `json:"summary"`
}

// Timeline is the append-only history of a person
type Timeline struct {
	PersonID uuid.UUID       `json:"person_id"`
	Entries  []TimelineEntry `json:"entries"`
}

// ProjectTimeline appends one entry per event
func ProjectTimeline(current *Timeline, e person.Event) *Timeline {
	next := Timeline{PersonID: e.AggregateID()}
	if current != nil {
		next.PersonID = current.PersonID
		next.Entries = make([]TimelineEntry, len(current.Entries), len(current.Entries)+1)
		copy(next.Entries, current.Entries)
	}

	entry := TimelineEntry{
		EventID:    e.EventID(),
		Version:    e.AggregateVersion(),
		EventType:  e.EventType(),
		OccurredAt: e.OccurredAt(),
		Actor:      e.Actor(),
	}

	switch ev := e.(type) {
	case *person.PersonCreatedEvent:
		entry.Summary = fmt.Sprintf("Created %s", ev.LegalName)
	case *person.NameUpdatedEvent:
		entry.Summary = fmt.Sprintf("Name changed from %s to %s", ev.PreviousName, ev.LegalName)
	case *person.AttributeRecordedEvent:
		entry.AttributeType = ev.Attribute.Type.String()
		entry.Summary = fmt.Sprintf("Recorded %s: %s", ev.Attribute.Type, ev.Attribute.Value)
	case *person.AttributeUpdatedEvent:
		entry.AttributeType = ev.Attribute.Type.String()
		entry.Summary = fmt.Sprintf("Updated %s: %s -> %s", ev.Attribute.Type, ev.Previous.Value, ev.Attribute.Value)
	case *person.AttributeInvalidatedEvent:
		entry.AttributeType = ev.AttributeType.String()
		entry.Summary = fmt.Sprintf("Invalidated %s", ev.AttributeType)
		if ev.Reason != "" {
			entry.Summary += ": " + ev.Reason
		}
	case *person.PersonDeactivatedEvent:
		entry.Summary = "Deactivated"
		if ev.Reason != "" {
			entry.Summary += ": " + ev.Reason
		}
	case *person.PersonReactivatedEvent:
		entry.Summary = "Reactivated"
	case *person.PersonDeceasedEvent:
		entry.Summary = fmt.Sprintf("Died on %s", ev.DeathDate.Format("2006-01-02"))
	case *person.PersonMergedIntoEvent:
		entry.Summary = fmt.Sprintf("Merged into %s (similarity %.2f)", ev.TargetID, ev.Similarity)
	default:
		entry.Summary = e.EventType()
	}

	next.Entries = append(next.Entries, entry)
	return &next
}
