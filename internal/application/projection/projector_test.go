package projection

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	apperson "github.com/persona/backend/internal/application/person"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/readmodel"
	"github.com/persona/backend/internal/domain/shared"
	"github.com/persona/backend/internal/infrastructure/cache"
	"github.com/persona/backend/internal/infrastructure/event"
	"github.com/persona/backend/internal/infrastructure/persistence"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store   *persistence.MemoryEventStore
	stores  readmodel.Stores
	decider *person.Decider
	clock   time.Time
}

func newFixture() *fixture {
	stores := readmodel.Stores{
		Summary:    persistence.NewMemoryReadModelStore[readmodel.PersonSummary](readmodel.CollectionSummary),
		Search:     persistence.NewMemoryReadModelStore[readmodel.SearchDocument](readmodel.CollectionSearch),
		Timeline:   persistence.NewMemoryReadModelStore[readmodel.Timeline](readmodel.CollectionTimeline),
		Categories: map[person.Category]readmodel.Store[readmodel.CategoryView]{},
	}
	for _, c := range readmodel.MaterializedCategories {
		stores.Categories[c] = persistence.NewMemoryReadModelStore[readmodel.CategoryView](readmodel.CategoryCollection(c))
	}
	return &fixture{
		store:   persistence.NewMemoryEventStore(),
		stores:  stores,
		decider: person.NewDecider(nil),
		clock:   t0,
	}
}

// record handles cmd and appends its events without publishing them
func (f *fixture) record(t *testing.T, cmd person.Command) []person.Event {
	t.Helper()
	ctx := context.Background()
	id := cmd.Metadata().PersonID
	current, err := apperson.LoadPerson(ctx, f.store, id)
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Minute)
	cmd, err = person.WithMetadata(cmd, person.CommandMeta{
		PersonID:  id,
		CommandID: uuid.New(),
		IssuedAt:  f.clock,
		Actor:     "registrar",
	})
	require.NoError(t, err)
	events, err := f.decider.Handle(current, cmd)
	require.NoError(t, err)

	domainEvents := make([]shared.DomainEvent, len(events))
	for i, e := range events {
		domainEvents[i] = e
	}
	require.NoError(t, f.store.Append(ctx, id, current.Version, domainEvents...))
	return events
}

// history records a person with a name change and two physical facts
func (f *fixture) history(t *testing.T) (uuid.UUID, []person.Event) {
	t.Helper()
	id := uuid.New()
	meta := person.CommandMeta{PersonID: id}
	height, err := person.NewMeasurement(decimal.RequireFromString("171.5"), "cm")
	require.NoError(t, err)

	var events []person.Event
	events = append(events, f.record(t, person.CreatePerson{CommandMeta: meta, LegalName: "Alice Smith"})...)
	events = append(events, f.record(t, person.UpdateName{CommandMeta: meta, LegalName: "Alice Jones"})...)
	events = append(events, f.record(t, person.RecordAttribute{
		CommandMeta: meta,
		Type:        person.Height,
		Value:       height,
		Source:      person.SourceClinicalRecord,
	})...)
	events = append(events, f.record(t, person.RecordAttribute{
		CommandMeta: meta,
		Type:        person.BirthPlace,
		Value:       person.TextValue{Text: "Zürich"},
		Source:      person.SourceSelfReported,
	})...)
	return id, events
}

func (f *fixture) projector() *Projector {
	return NewProjector(f.stores, f.store, zap.NewNop(), WithBatchSize(2))
}

func TestProjector_HandleInOrder(t *testing.T) {
	f := newFixture()
	p := f.projector()
	ctx := context.Background()
	id, events := f.history(t)

	for _, e := range events {
		require.NoError(t, p.Handle(ctx, e))
	}

	summary, err := f.stores.Summary.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(4), summary.Version)
	assert.Equal(t, summary.Version, summary.Model.Version)
	assert.Equal(t, "Alice Jones", summary.Model.LegalName)
	assert.Equal(t, 2, summary.Model.AttributeCount)

	doc, err := f.stores.Search.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1.0, doc.Model.Relevance("jones"))

	timeline, err := f.stores.Timeline.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, timeline.Model.Entries, 4)
	assert.Equal(t, person.EventTypePersonCreated, timeline.Model.Entries[0].EventType)

	physical, err := f.stores.Categories[person.CategoryPhysical].Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, physical.Model.Attributes.Len())
	assert.Equal(t, int64(4), physical.Version, "records advance even when the model is unchanged")

	healthcare, err := f.stores.Categories[person.CategoryHealthcare].Get(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, healthcare.Model.Attributes.Len())
}

func TestProjector_IgnoresAppliedVersions(t *testing.T) {
	f := newFixture()
	p := f.projector()
	ctx := context.Background()
	id, events := f.history(t)

	for _, e := range events {
		require.NoError(t, p.Handle(ctx, e))
	}
	require.NoError(t, p.Handle(ctx, events[1]))
	require.NoError(t, p.Handle(ctx, events[3]))

	timeline, err := f.stores.Timeline.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, timeline.Model.Entries, 4)
	assert.Equal(t, int64(4), timeline.Version)
}

func TestProjector_CatchesUpGaps(t *testing.T) {
	f := newFixture()
	p := f.projector()
	ctx := context.Background()
	id, events := f.history(t)

	require.NoError(t, p.Handle(ctx, events[0]))
	require.NoError(t, p.Handle(ctx, events[3]))

	timeline, err := f.stores.Timeline.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(4), timeline.Version)
	require.Len(t, timeline.Model.Entries, 4)
	for i, entry := range timeline.Model.Entries {
		assert.Equal(t, int64(i+1), entry.Version)
	}

	summary, err := f.stores.Summary.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Alice Jones", summary.Model.LegalName)

	t.Run("late event after catch-up is ignored", func(t *testing.T) {
		require.NoError(t, p.Handle(ctx, events[2]))
		timeline, err := f.stores.Timeline.Get(ctx, id)
		require.NoError(t, err)
		assert.Len(t, timeline.Model.Entries, 4)
	})
}

func TestProjector_CatchUpFailsWhenHistoryIsShort(t *testing.T) {
	f := newFixture()
	p := f.projector()
	_, events := f.history(t)

	// an event the log does not hold for its person
	stray := &person.PersonDeactivatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(uuid.New(), person.EventTypePersonDeactivated,
			person.AggregateTypePerson, events[0].AggregateID(), 9, t0, "registrar"),
		Reason: "duplicate",
	}
	err := p.Handle(context.Background(), stray)
	assert.Error(t, err)
}

type foreignEvent struct {
	shared.BaseDomainEvent
}

func TestProjector_SkipsForeignEvents(t *testing.T) {
	f := newFixture()
	p := f.projector()

	err := p.Handle(context.Background(), &foreignEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(uuid.New(), "InvoiceIssued", "Invoice", uuid.New(), 1, t0, ""),
	})
	assert.NoError(t, err)

	all, err := f.stores.Summary.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

// failingStore fails every Put
type failingStore[M any] struct {
	readmodel.Store[M]
}

var errStoreOffline = errors.New("read store offline")

func (failingStore[M]) Put(context.Context, readmodel.Record[M]) error {
	return errStoreOffline
}

func TestProjector_ReturnsStoreFailures(t *testing.T) {
	f := newFixture()
	f.stores.Search = failingStore[readmodel.SearchDocument]{Store: f.stores.Search}
	p := f.projector()
	ctx := context.Background()
	id, events := f.history(t)

	err := p.Handle(ctx, events[0])
	require.ErrorIs(t, err, errStoreOffline)

	summary, err := f.stores.Summary.Get(ctx, id)
	require.NoError(t, err, "healthy views are still updated")
	assert.Equal(t, int64(1), summary.Version)
}

func TestProjector_Rebuild(t *testing.T) {
	f := newFixture()
	p := f.projector()
	ctx := context.Background()
	alice, _ := f.history(t)
	bob, _ := f.history(t)

	stale := uuid.New()
	require.NoError(t, f.stores.Summary.Put(ctx, readmodel.Record[readmodel.PersonSummary]{
		ID: stale, Version: 1, Model: readmodel.PersonSummary{ID: stale, LegalName: "Ghost"},
	}))

	stats, err := p.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, stats.Events)
	assert.Equal(t, []string{ViewSummary, ViewSearch, ViewTimeline, "category_physical", "category_healthcare"}, stats.Views)

	summaries, err := f.stores.Summary.List(ctx)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	for _, id := range []uuid.UUID{alice, bob} {
		timeline, err := f.stores.Timeline.Get(ctx, id)
		require.NoError(t, err)
		assert.Len(t, timeline.Model.Entries, 4)
	}
	_, err = f.stores.Summary.Get(ctx, stale)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestProjector_RebuildWaitsForPersonLock(t *testing.T) {
	f := newFixture()
	p := f.projector()
	ctx := context.Background()
	id, events := f.history(t)

	// a live delivery for the same person is in progress
	unlock, err := p.locker.Lock(ctx, id)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.Rebuild(ctx)
		done <- err
	}()

	assert.Never(t, func() bool { return len(done) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	_, err = f.stores.Summary.Get(ctx, id)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	unlock()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("rebuild did not finish after the lock was released")
	}

	summary, err := f.stores.Summary.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(len(events)), summary.Version)
}

func TestProjector_RedeliveryThroughIdempotentHandler(t *testing.T) {
	f := newFixture()
	p := f.projector()
	ctx := context.Background()
	id, events := f.history(t)

	idem := cache.NewInMemoryIdempotencyStore()
	defer idem.Close()
	bus := event.NewInMemoryEventBus(zap.NewNop())
	delivery := event.NewIdempotentHandler(p, idem, zap.NewNop())
	bus.Subscribe(delivery)

	for _, e := range events {
		require.NoError(t, bus.Publish(ctx, e))
	}
	require.NoError(t, bus.Publish(ctx, events[2]))

	timeline, err := f.stores.Timeline.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, timeline.Model.Entries, 4)

	processed, err := idem.IsProcessed(ctx, delivery.Key(events[0]))
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, fmt.Sprintf("%s:%s@1", HandlerName, id), delivery.Key(events[0]))
	assert.Equal(t, event.DeliveryStats{Applied: int64(len(events)), Duplicates: 1}, delivery.Stats())
}
