package person

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func meta(id uuid.UUID, at time.Time) CommandMeta {
	return CommandMeta{PersonID: id, CommandID: uuid.New(), IssuedAt: at, Actor: "tester"}
}

func textAttr(t AttributeType, text string, recordedAt time.Time) Attribute {
	prov, _ := NewProvenance(SourceSelfReported, "", recordedAt, "tester")
	return Attribute{
		Type:       t,
		Value:      TextValue{Text: text},
		Temporal:   TemporalValidity{RecordedAt: recordedAt},
		Provenance: prov,
	}
}

// run handles cmd against p, applies the events and returns the new state
func run(t *testing.T, d *Decider, p Person, cmd Command) (Person, []Event) {
	t.Helper()
	events, err := d.Handle(p, cmd)
	require.NoError(t, err)
	for _, e := range events {
		p = Apply(p, e)
	}
	return p, events
}

func created(t *testing.T, d *Decider, name string) Person {
	t.Helper()
	p, _ := run(t, d, Person{}, CreatePerson{CommandMeta: meta(uuid.New(), t0), LegalName: name})
	return p
}
