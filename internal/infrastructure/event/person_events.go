package event

import "github.com/persona/backend/internal/domain/person"

// RegisterPersonEvents registers every person event with the serializer.
// The event store and the relay cannot decode unregistered types.
func RegisterPersonEvents(serializer *EventSerializer) {
	serializer.Register(person.EventTypePersonCreated, &person.PersonCreatedEvent{})
	serializer.Register(person.EventTypeNameUpdated, &person.NameUpdatedEvent{})
	serializer.Register(person.EventTypeAttributeRecorded, &person.AttributeRecordedEvent{})
	serializer.Register(person.EventTypeAttributeUpdated, &person.AttributeUpdatedEvent{})
	serializer.Register(person.EventTypeAttributeInvalidated, &person.AttributeInvalidatedEvent{})
	serializer.Register(person.EventTypePersonDeactivated, &person.PersonDeactivatedEvent{})
	serializer.Register(person.EventTypePersonReactivated, &person.PersonReactivatedEvent{})
	serializer.Register(person.EventTypePersonDeceased, &person.PersonDeceasedEvent{})
	serializer.Register(person.EventTypePersonMergedInto, &person.PersonMergedIntoEvent{})
}

// NewPersonEventSerializer returns a serializer with all person events registered
func NewPersonEventSerializer() *EventSerializer {
	s := NewEventSerializer()
	RegisterPersonEvents(s)
	return s
}
