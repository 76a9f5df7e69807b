package readmodel

import (
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/person"
)

// CategoryView holds the attributes of one category, history included.
// Queries narrow it to the facts valid at a given instant.
type CategoryView struct {
	PersonID   uuid.UUID           `json:"person_id"`
	Category   person.Category     `json:"category"`
	Attributes person.AttributeSet `json:"attributes"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// CategoryViewProjection returns the projection of category c
func CategoryViewProjection(c person.Category) Projection[CategoryView] {
	return func(current *CategoryView, e person.Event) *CategoryView {
		if created, ok := e.(*person.PersonCreatedEvent); ok {
			return &CategoryView{
				PersonID:   created.AggregateID(),
				Category:   c,
				Attributes: person.Empty(),
				UpdatedAt:  created.OccurredAt(),
			}
		}
		if current == nil || eventCategory(e) != c {
			return current
		}
		next := *current
		next.Attributes = person.ApplyToAttributes(current.Attributes, e)
		next.UpdatedAt = e.OccurredAt()
		return &next
	}
}

func eventCategory(e person.Event) person.Category {
	switch ev := e.(type) {
	case *person.AttributeRecordedEvent:
		return ev.Attribute.Type.Category
	case *person.AttributeUpdatedEvent:
		return ev.Attribute.Type.Category
	case *person.AttributeInvalidatedEvent:
		return ev.AttributeType.Category
	}
	return ""
}
