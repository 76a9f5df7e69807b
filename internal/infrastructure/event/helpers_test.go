package event

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// personHistory produces a realistic event stream for one person
func personHistory(t *testing.T) []person.Event {
	t.Helper()
	d := person.NewDecider(nil)
	id := uuid.New()
	meta := func(at time.Time) person.CommandMeta {
		return person.CommandMeta{PersonID: id, CommandID: uuid.New(), IssuedAt: at, Actor: "clerk"}
	}
	height, err := person.NewMeasurement(decimal.NewFromInt(180), "cm")
	require.NoError(t, err)

	var (
		p      person.Person
		events []person.Event
	)
	for i, cmd := range []person.Command{
		person.CreatePerson{CommandMeta: meta(t0), LegalName: "Alice Smith"},
		person.RecordAttribute{CommandMeta: meta(t0.Add(time.Hour)), Type: person.Height, Value: height, Source: person.SourceClinicalRecord},
		person.RecordAttribute{CommandMeta: meta(t0.Add(2 * time.Hour)), Type: person.BirthDate, Value: person.NewDate(1990, time.May, 4), Source: person.SourceDocumentVerified},
		person.DeactivatePerson{CommandMeta: meta(t0.Add(3 * time.Hour)), Reason: "moved abroad"},
	} {
		out, err := d.Handle(p, cmd)
		require.NoError(t, err, "command %d", i)
		for _, e := range out {
			p = person.Apply(p, e)
		}
		events = append(events, out...)
	}
	return events
}

func domainEvents(events []person.Event) []shared.DomainEvent {
	out := make([]shared.DomainEvent, len(events))
	for i, e := range events {
		out[i] = e
	}
	return out
}

// recordingHandler implements EventHandler for testing
type recordingHandler struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panicWith  any
}

func newRecordingHandler(eventTypes ...string) *recordingHandler {
	return &recordingHandler{eventTypes: eventTypes}
}

func (h *recordingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	h.handled = append(h.handled, event)
	return h.err
}

func (h *recordingHandler) EventTypes() []string { return h.eventTypes }

func (h *recordingHandler) setError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

// gatedHandler blocks each delivery until the test hands it a result
type gatedHandler struct {
	entered chan struct{}
	results chan error
	calls   atomic.Int32
}

func newGatedHandler() *gatedHandler {
	return &gatedHandler{entered: make(chan struct{}, 4), results: make(chan error, 4)}
}

func (h *gatedHandler) Handle(ctx context.Context, _ shared.DomainEvent) error {
	h.calls.Add(1)
	h.entered <- struct{}{}
	select {
	case err := <-h.results:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *gatedHandler) EventTypes() []string { return nil }
