package person

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/readmodel"
	"github.com/persona/backend/internal/domain/shared"
	"github.com/persona/backend/internal/infrastructure/event"
	"github.com/persona/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// steppingClock advances by step on every reading
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// recordingHandler remembers every event it is given and fails with err
// when set
type recordingHandler struct {
	mu     sync.Mutex
	events []shared.DomainEvent
	err    error
}

func (h *recordingHandler) Handle(_ context.Context, e shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.events = append(h.events, e)
	return nil
}

func (h *recordingHandler) EventTypes() []string { return person.EventTypes() }

func (h *recordingHandler) Received() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.events...)
}

type fixture struct {
	store   *persistence.MemoryEventStore
	bus     *event.InMemoryEventBus
	handler *recordingHandler
	clock   *steppingClock
	svc     *CommandService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   persistence.NewMemoryEventStore(),
		bus:     event.NewInMemoryEventBus(zap.NewNop()),
		handler: &recordingHandler{},
		clock:   &steppingClock{now: t0, step: time.Minute},
	}
	f.bus.Subscribe(f.handler)
	f.svc = NewCommandService(f.store, f.bus, person.NewDecider(nil), zap.NewNop(), WithClock(f.clock.Now))
	return f
}

// create submits CreatePerson for a fresh id
func (f *fixture) create(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := f.svc.Submit(context.Background(), person.CreatePerson{
		CommandMeta: person.CommandMeta{PersonID: id},
		LegalName:   name,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) submit(t *testing.T, cmd person.Command) []person.Event {
	t.Helper()
	events, err := f.svc.Submit(context.Background(), cmd)
	require.NoError(t, err)
	return events
}

// materialize folds the whole event log into fresh in-memory read models
func (f *fixture) materialize(t *testing.T) readmodel.Stores {
	t.Helper()
	ctx := context.Background()
	stores := readmodel.Stores{
		Summary:    persistence.NewMemoryReadModelStore[readmodel.PersonSummary](readmodel.CollectionSummary),
		Search:     persistence.NewMemoryReadModelStore[readmodel.SearchDocument](readmodel.CollectionSearch),
		Timeline:   persistence.NewMemoryReadModelStore[readmodel.Timeline](readmodel.CollectionTimeline),
		Categories: map[person.Category]readmodel.Store[readmodel.CategoryView]{},
	}
	for _, c := range readmodel.MaterializedCategories {
		stores.Categories[c] = persistence.NewMemoryReadModelStore[readmodel.CategoryView](readmodel.CategoryCollection(c))
	}

	records, err := f.store.ReadAll(ctx, 0, 10000)
	require.NoError(t, err)
	for _, rec := range records {
		e := rec.Event.(person.Event)
		fold(t, stores.Summary, readmodel.ProjectSummary, e)
		fold(t, stores.Search, readmodel.ProjectSearch, e)
		fold(t, stores.Timeline, readmodel.ProjectTimeline, e)
		for c, store := range stores.Categories {
			fold(t, store, readmodel.CategoryViewProjection(c), e)
		}
	}
	return stores
}

func fold[M any](t *testing.T, store readmodel.Store[M], project readmodel.Projection[M], e person.Event) {
	t.Helper()
	ctx := context.Background()
	var current *M
	if rec, err := store.Get(ctx, e.AggregateID()); err == nil {
		current = &rec.Model
	}
	next := project(current, e)
	if next == nil {
		return
	}
	require.NoError(t, store.Put(ctx, readmodel.Record[M]{
		ID:        e.AggregateID(),
		Version:   e.AggregateVersion(),
		Model:     *next,
		UpdatedAt: e.OccurredAt(),
	}))
}

func meta(id uuid.UUID) person.CommandMeta {
	return person.CommandMeta{PersonID: id}
}

func timePtr(t time.Time) *time.Time { return &t }
