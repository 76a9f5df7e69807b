package event

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/shared"
	"github.com/persona/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// storeWithEvents appends one PersonCreated event per name and kills the
// first dead events by exhausting their publish attempts
func storeWithEvents(t *testing.T, names []string, dead int) (*persistence.MemoryEventStore, []shared.DomainEvent) {
	t.Helper()
	ctx := context.Background()
	store := persistence.NewMemoryEventStore()
	decider := person.NewDecider(nil)

	var events []shared.DomainEvent
	for _, name := range names {
		id := uuid.New()
		out, err := decider.Handle(person.Person{}, person.CreatePerson{
			CommandMeta: person.CommandMeta{PersonID: id, CommandID: uuid.New(), IssuedAt: t0},
			LegalName:   name,
		})
		require.NoError(t, err)
		require.NoError(t, store.Append(ctx, id, 0, out[0]))
		events = append(events, out[0])
	}
	for _, e := range events[:dead] {
		for i := 0; i < shared.DefaultMaxPublishAttempts; i++ {
			require.NoError(t, store.MarkPublishFailed(ctx, e.EventID(), "projection store offline", t0))
		}
	}
	return store, events
}

func TestDeadLetterService_ListDead(t *testing.T) {
	store, events := storeWithEvents(t, []string{"Alice Smith", "Bob Jones", "Carol White"}, 2)
	svc := NewDeadLetterService(store, zap.NewNop())

	dead, err := svc.ListDead(context.Background(), DeadLetterFilter{})
	require.NoError(t, err)
	require.Len(t, dead, 2)
	assert.Equal(t, events[0].EventID(), dead[0].EventID)
	assert.Equal(t, person.EventTypePersonCreated, dead[0].EventType)
	assert.Equal(t, events[0].AggregateID(), dead[0].PersonID)
	assert.Equal(t, shared.DefaultMaxPublishAttempts, dead[0].Attempts)
	assert.Equal(t, "projection store offline", dead[0].LastError)

	dead, err = svc.ListDead(context.Background(), DeadLetterFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, dead, 1)
}

func TestDeadLetterService_Retry(t *testing.T) {
	ctx := context.Background()
	store, events := storeWithEvents(t, []string{"Alice Smith", "Bob Jones"}, 1)
	svc := NewDeadLetterService(store, zap.NewNop())

	require.NoError(t, svc.Retry(ctx, events[0].EventID()))
	due, err := store.FindUnpublished(ctx, t0, 10)
	require.NoError(t, err)
	assert.Len(t, due, 2)

	t.Run("live event", func(t *testing.T) {
		err := svc.Retry(ctx, events[1].EventID())
		assert.ErrorIs(t, err, shared.ErrNotDead)
	})

	t.Run("unknown event", func(t *testing.T) {
		err := svc.Retry(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestDeadLetterService_RetryAll(t *testing.T) {
	ctx := context.Background()
	store, _ := storeWithEvents(t, []string{"Alice Smith", "Bob Jones", "Carol White"}, 3)
	svc := NewDeadLetterService(store, zap.NewNop())

	count, err := svc.RetryAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	dead, err := svc.ListDead(ctx, DeadLetterFilter{})
	require.NoError(t, err)
	assert.Empty(t, dead)

	count, err = svc.RetryAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
