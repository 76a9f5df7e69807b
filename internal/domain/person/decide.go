package person

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/shared"
)

// DefaultMergeThreshold is the similarity a merge needs unless forced
const DefaultMergeThreshold = 0.7

// Decider turns commands into events. Handle is pure: it reads only its
// arguments and the taxonomy, never the clock, and never changes the person.
type Decider struct {
	taxonomy       *Taxonomy
	mergeThreshold float64
}

// DeciderOption configures a Decider
type DeciderOption func(*Decider)

// WithMergeThreshold sets the similarity a merge needs unless forced
func WithMergeThreshold(threshold float64) DeciderOption {
	return func(d *Decider) {
		d.mergeThreshold = threshold
	}
}

// NewDecider creates a Decider validating attributes against taxonomy
func NewDecider(taxonomy *Taxonomy, opts ...DeciderOption) *Decider {
	if taxonomy == nil {
		taxonomy = NewTaxonomy()
	}
	d := &Decider{taxonomy: taxonomy, mergeThreshold: DefaultMergeThreshold}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Taxonomy returns the taxonomy commands are validated against
func (d *Decider) Taxonomy() *Taxonomy {
	return d.taxonomy
}

// MergeThreshold returns the similarity a merge needs unless forced
func (d *Decider) MergeThreshold() float64 {
	return d.mergeThreshold
}

// Handle decides which events cmd produces against p. On error no events
// are returned.
func (d *Decider) Handle(p Person, cmd Command) ([]Event, error) {
	if cmd == nil {
		return nil, shared.NewValidationError("command", "must not be empty")
	}
	meta := cmd.Metadata()
	if err := validateMeta(meta); err != nil {
		return nil, err
	}
	if p.Exists() && p.ID != meta.PersonID {
		return nil, shared.NewValidationError("person_id", "does not match the loaded person")
	}

	em := &emitter{meta: meta, next: p.Version + 1}
	if b, ok := cmd.(Batch); ok {
		return d.handleBatch(p, b, em)
	}

	event, err := d.decide(p, cmd, em)
	if err != nil {
		return nil, err
	}
	return []Event{event}, nil
}

func (d *Decider) handleBatch(p Person, b Batch, em *emitter) ([]Event, error) {
	if len(b.Commands) == 0 {
		return nil, shared.NewValidationError("commands", "must not be empty")
	}

	state := p
	events := make([]Event, 0, len(b.Commands))
	for i, sub := range b.Commands {
		if sub == nil {
			return nil, shared.NewValidationError(fmt.Sprintf("commands[%d]", i), "must not be empty")
		}
		if id := sub.Metadata().PersonID; id != uuid.Nil && id != b.PersonID {
			return nil, shared.NewValidationError(fmt.Sprintf("commands[%d].person_id", i), "must match the batch")
		}
		if _, nested := sub.(Batch); nested {
			return nil, shared.NewValidationError(fmt.Sprintf("commands[%d]", i), "batches cannot be nested")
		}
		event, err := d.decide(state, sub, em)
		if err != nil {
			return nil, fmt.Errorf("batch command %d (%s): %w", i, sub.CommandType(), err)
		}
		state = Apply(state, event)
		events = append(events, event)
	}
	return events, nil
}

func (d *Decider) decide(p Person, cmd Command, em *emitter) (Event, error) {
	if create, ok := cmd.(CreatePerson); ok {
		return d.createPerson(p, create, em)
	}

	if !p.Exists() {
		return nil, shared.NewNotFoundError(em.meta.PersonID)
	}
	if p.Lifecycle.IsTerminal() {
		return nil, shared.NewInvalidStateTransitionError(string(p.State()), cmd.CommandType())
	}

	switch c := cmd.(type) {
	case UpdateName:
		return d.updateName(p, c, em)
	case RecordAttribute:
		return d.recordAttribute(c, em)
	case UpdateAttribute:
		return d.updateAttribute(p, c, em)
	case InvalidateAttribute:
		return d.invalidateAttribute(p, c, em)
	case DeactivatePerson:
		return d.deactivate(p, c, em)
	case ReactivatePerson:
		return d.reactivate(p, em)
	case RecordDeath:
		return d.recordDeath(p, c, em)
	case MergePerson:
		return d.merge(p, c, em)
	}
	return nil, shared.NewValidationError("command", fmt.Sprintf("unsupported command %T", cmd))
}

func (d *Decider) createPerson(p Person, c CreatePerson, em *emitter) (Event, error) {
	if p.Exists() {
		return nil, shared.NewInvalidStateTransitionError(string(p.State()), CommandCreatePerson)
	}
	name, err := NormalizeLegalName(c.LegalName)
	if err != nil {
		return nil, err
	}
	if c.BirthDate != nil && c.BirthDate.After(em.meta.IssuedAt) {
		return nil, shared.NewValidationError("birth_date", "must not be in the future")
	}
	return &PersonCreatedEvent{
		BaseDomainEvent: em.base(EventTypePersonCreated),
		LegalName:       name,
		BirthDate:       copyTime(c.BirthDate),
	}, nil
}

func (d *Decider) updateName(p Person, c UpdateName, em *emitter) (Event, error) {
	name, err := NormalizeLegalName(c.LegalName)
	if err != nil {
		return nil, err
	}
	if name == p.Identity.LegalName {
		return nil, shared.NewValidationError("legal_name", "is unchanged")
	}
	return &NameUpdatedEvent{
		BaseDomainEvent: em.base(EventTypeNameUpdated),
		PreviousName:    p.Identity.LegalName,
		LegalName:       name,
	}, nil
}

func (d *Decider) recordAttribute(c RecordAttribute, em *emitter) (Event, error) {
	if err := d.taxonomy.Validate(c.Type, c.Value); err != nil {
		return nil, err
	}
	temporal, err := NewTemporalValidity(em.meta.IssuedAt, c.ValidFrom, c.ValidUntil)
	if err != nil {
		return nil, err
	}
	prov, err := NewProvenance(c.Source, c.Confidence, em.meta.IssuedAt, em.meta.Actor)
	if err != nil {
		return nil, err
	}
	return &AttributeRecordedEvent{
		BaseDomainEvent: em.base(EventTypeAttributeRecorded),
		Attribute:       Attribute{Type: c.Type, Value: c.Value, Temporal: temporal, Provenance: prov},
	}, nil
}

func (d *Decider) updateAttribute(p Person, c UpdateAttribute, em *emitter) (Event, error) {
	if err := d.taxonomy.Validate(c.Type, c.Value); err != nil {
		return nil, err
	}
	effective := em.meta.IssuedAt
	if c.ValidFrom != nil {
		effective = *c.ValidFrom
	}

	previous, ok := p.Attributes.CurrentAt(c.Type, effective)
	if !ok {
		return nil, shared.NewValidationError("attribute_type", fmt.Sprintf("no %s value in force at %s", c.Type, effective.Format(time.RFC3339)))
	}
	if from := previous.Temporal.ValidFrom; from != nil && !effective.After(*from) {
		return nil, shared.NewValidationError("valid_from", "must be after the start of the value being replaced")
	}

	temporal, err := NewTemporalValidity(em.meta.IssuedAt, &effective, c.ValidUntil)
	if err != nil {
		return nil, err
	}
	fresh, err := NewProvenance(c.Source, c.Confidence, em.meta.IssuedAt, em.meta.Actor)
	if err != nil {
		return nil, err
	}
	fresh.Trace = NewTrace(TraceStep{Operation: "update", Timestamp: em.meta.IssuedAt, Actor: em.meta.Actor})

	return &AttributeUpdatedEvent{
		BaseDomainEvent: em.base(EventTypeAttributeUpdated),
		Previous:        previous,
		Attribute: Attribute{
			Type:       c.Type,
			Value:      c.Value,
			Temporal:   temporal,
			Provenance: ComposeProvenance(previous.Provenance, fresh),
		},
		EffectiveAt: effective,
	}, nil
}

func (d *Decider) invalidateAttribute(p Person, c InvalidateAttribute, em *emitter) (Event, error) {
	if _, ok := d.taxonomy.Lookup(c.Type); !ok {
		return nil, shared.NewValidationError("attribute_type", fmt.Sprintf("unknown attribute type %s", c.Type))
	}
	at := em.meta.IssuedAt
	if c.At != nil {
		at = *c.At
	}

	current, ok := p.Attributes.CurrentAt(c.Type, at)
	if !ok {
		return nil, shared.NewValidationError("attribute_type", fmt.Sprintf("no %s value in force at %s", c.Type, at.Format(time.RFC3339)))
	}
	if from := current.Temporal.ValidFrom; from != nil && !at.After(*from) {
		return nil, shared.NewValidationError("at", "must be after the start of the value being invalidated")
	}

	return &AttributeInvalidatedEvent{
		BaseDomainEvent: em.base(EventTypeAttributeInvalidated),
		AttributeType:   c.Type,
		InvalidatedAt:   at,
		Reason:          c.Reason,
	}, nil
}

func (d *Decider) deactivate(p Person, c DeactivatePerson, em *emitter) (Event, error) {
	if p.State() != StateActive {
		return nil, shared.NewInvalidStateTransitionError(string(p.State()), CommandDeactivatePerson)
	}
	return &PersonDeactivatedEvent{
		BaseDomainEvent: em.base(EventTypePersonDeactivated),
		Reason:          c.Reason,
	}, nil
}

func (d *Decider) reactivate(p Person, em *emitter) (Event, error) {
	if p.State() != StateDeactivated {
		return nil, shared.NewInvalidStateTransitionError(string(p.State()), CommandReactivatePerson)
	}
	return &PersonReactivatedEvent{BaseDomainEvent: em.base(EventTypePersonReactivated)}, nil
}

func (d *Decider) recordDeath(p Person, c RecordDeath, em *emitter) (Event, error) {
	if c.DeathDate.IsZero() {
		return nil, shared.NewValidationError("death_date", "is required")
	}
	if c.DeathDate.After(em.meta.IssuedAt) {
		return nil, shared.NewValidationError("death_date", "must not be in the future")
	}
	if b := p.Identity.BirthDate; b != nil && c.DeathDate.Before(*b) {
		return nil, shared.NewValidationError("death_date", "must not be before the birth date")
	}
	return &PersonDeceasedEvent{
		BaseDomainEvent: em.base(EventTypePersonDeceased),
		DeathDate:       c.DeathDate,
	}, nil
}

func (d *Decider) merge(p Person, c MergePerson, em *emitter) (Event, error) {
	if c.TargetID == uuid.Nil {
		return nil, shared.NewValidationError("target_id", "is required")
	}
	if c.TargetID == p.ID {
		return nil, shared.NewValidationError("target_id", "cannot merge a person into itself")
	}
	if c.Target == nil || !c.Target.Exists() || c.Target.ID != c.TargetID {
		return nil, shared.NewNotFoundError(c.TargetID)
	}
	if c.Target.State() == StateMergedInto {
		return nil, shared.NewInvalidStateTransitionError(string(StateMergedInto), CommandMergePerson)
	}

	score := Similarity(p, *c.Target, em.meta.IssuedAt)
	if score < d.mergeThreshold && !c.Force {
		return nil, shared.NewIdentityMismatchError(score, d.mergeThreshold)
	}
	return &PersonMergedIntoEvent{
		BaseDomainEvent: em.base(EventTypePersonMergedInto),
		TargetID:        c.TargetID,
		Similarity:      score,
		Forced:          c.Force && score < d.mergeThreshold,
	}, nil
}

func validateMeta(m CommandMeta) error {
	if m.PersonID == uuid.Nil {
		return shared.NewValidationError("person_id", "is required")
	}
	if m.CommandID == uuid.Nil {
		return shared.NewValidationError("command_id", "is required")
	}
	if m.IssuedAt.IsZero() {
		return shared.NewValidationError("issued_at", "is required")
	}
	return nil
}

// emitter hands out event envelopes with consecutive versions and ids
// derived from the command id.
type emitter struct {
	meta  CommandMeta
	next  int64
	index int
}

func (e *emitter) base(eventType string) shared.BaseDomainEvent {
	b := shared.NewBaseDomainEvent(
		DeriveEventID(e.meta.CommandID, e.index),
		eventType,
		AggregateTypePerson,
		e.meta.PersonID,
		e.next,
		e.meta.IssuedAt,
		e.meta.Actor,
	)
	e.index++
	e.next++
	return b
}
