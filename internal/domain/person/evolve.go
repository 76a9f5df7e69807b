package person

import "time"

// Apply returns the state after e. It never rejects an event; every event
// advances the version by one.
func Apply(p Person, e Event) Person {
	next := p
	at := e.OccurredAt()

	switch ev := e.(type) {
	case *PersonCreatedEvent:
		next = Person{
			ID: ev.AggregateID(),
			Identity: CoreIdentity{
				LegalName: ev.LegalName,
				BirthDate: copyTime(ev.BirthDate),
				CreatedAt: at,
				UpdatedAt: at,
			},
			Attributes: Empty(),
			Lifecycle:  Active{},
		}
	case *NameUpdatedEvent:
		next.Identity = p.Identity.WithLegalName(ev.LegalName, at)
	case *AttributeRecordedEvent, *AttributeUpdatedEvent, *AttributeInvalidatedEvent:
		next.Attributes = ApplyToAttributes(p.Attributes, e)
		next.Identity = p.Identity.Touched(at)
	case *PersonDeactivatedEvent:
		next.Lifecycle = Deactivated{Reason: ev.Reason, Since: at}
		next.Identity = p.Identity.Touched(at)
	case *PersonReactivatedEvent:
		next.Lifecycle = Active{}
		next.Identity = p.Identity.Touched(at)
	case *PersonDeceasedEvent:
		next.Lifecycle = Deceased{DeathDate: ev.DeathDate}
		next.Identity = p.Identity.WithDeathDate(ev.DeathDate, at)
	case *PersonMergedIntoEvent:
		next.Lifecycle = MergedInto{TargetID: ev.TargetID, MergedAt: at}
		next.Identity = p.Identity.Touched(at)
	}

	next.Version = p.Version + 1
	return next
}

// ApplyToAttributes returns attrs after an attribute event. Other events
// leave attrs unchanged.
func ApplyToAttributes(attrs AttributeSet, e Event) AttributeSet {
	switch ev := e.(type) {
	case *AttributeRecordedEvent:
		return attrs.Append(ev.Attribute)
	case *AttributeUpdatedEvent:
		step := TraceStep{Operation: "supersede", Timestamp: ev.OccurredAt(), Actor: ev.Actor()}
		return closeInForce(attrs, ev.Attribute.Type, ev.EffectiveAt, step).Append(ev.Attribute)
	case *AttributeInvalidatedEvent:
		step := TraceStep{Operation: "invalidate", Timestamp: ev.OccurredAt(), Actor: ev.Actor()}
		return closeInForce(attrs, ev.AttributeType, ev.InvalidatedAt, step)
	}
	return attrs
}

// closeInForce ends, at t, every attribute of type at that holds at t and
// started before t.
func closeInForce(attrs AttributeSet, at AttributeType, t time.Time, step TraceStep) AttributeSet {
	return attrs.Map(func(a Attribute) Attribute {
		if a.Type != at || !a.IsValidAt(t) {
			return a
		}
		if from := a.Temporal.ValidFrom; from != nil && !from.Before(t) {
			return a
		}
		return a.ClosedAt(t, step)
	})
}

// Replay folds events over the empty person
func Replay(events []Event) Person {
	var p Person
	for _, e := range events {
		p = Apply(p, e)
	}
	return p
}
