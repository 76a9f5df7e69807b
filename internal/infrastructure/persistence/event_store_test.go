package persistence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/shared"
	"github.com/persona/backend/internal/infrastructure/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEventStore interface {
	shared.EventStore
	shared.DeadLetterStore
}

// eventStores returns a constructor for every store implementation
func eventStores() map[string]func(t *testing.T, now func() time.Time) testEventStore {
	return map[string]func(t *testing.T, now func() time.Time) testEventStore{
		"gorm": func(t *testing.T, now func() time.Time) testEventStore {
			s := NewGormEventStore(setupSQLite(t), event.NewPersonEventSerializer())
			s.now = now
			return s
		},
		"memory": func(t *testing.T, now func() time.Time) testEventStore {
			s := NewMemoryEventStore()
			s.now = now
			return s
		},
	}
}

func TestEventStore_AppendAndLoad(t *testing.T) {
	for name, newStore := range eventStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, func() time.Time { return t0 })
			id := uuid.New()
			events := personHistory(t, id, "Alice Smith")

			require.NoError(t, store.Append(ctx, id, 0, events[:1]...))
			require.NoError(t, store.Append(ctx, id, 1, events[1:]...))

			version, err := store.Version(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, int64(4), version)

			loaded, err := store.Load(ctx, id)
			require.NoError(t, err)
			require.Len(t, loaded, 4)
			assert.Equal(t, eventIDs(events), eventIDs(loaded))
			for i := range loaded {
				assert.Equal(t, events[i].EventType(), loaded[i].EventType())
				assert.Equal(t, int64(i+1), loaded[i].AggregateVersion())
			}

			created, ok := loaded[0].(*person.PersonCreatedEvent)
			require.True(t, ok, "decoded %T", loaded[0])
			assert.Equal(t, "Alice Smith", created.LegalName)
			assert.Equal(t, "clerk", created.Actor())

			replayed := person.Replay(toPersonEvents(t, loaded))
			assert.Equal(t, person.StateDeactivated, replayed.State())
			assert.Equal(t, int64(4), replayed.Version)
		})
	}
}

func TestEventStore_UnknownAggregate(t *testing.T) {
	for name, newStore := range eventStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, time.Now)

			version, err := store.Version(ctx, uuid.New())
			require.NoError(t, err)
			assert.Zero(t, version)

			loaded, err := store.Load(ctx, uuid.New())
			require.NoError(t, err)
			assert.Empty(t, loaded)
		})
	}
}

func TestEventStore_ConcurrencyConflict(t *testing.T) {
	for name, newStore := range eventStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, time.Now)
			id := uuid.New()
			events := personHistory(t, id, "Bob Jones")
			require.NoError(t, store.Append(ctx, id, 0, events[:2]...))

			t.Run("stale expected version", func(t *testing.T) {
				err := store.Append(ctx, id, 0, events[:1]...)
				var conflict *shared.ConcurrencyConflictError
				require.ErrorAs(t, err, &conflict)
				assert.Equal(t, int64(0), conflict.Expected)
				assert.Equal(t, int64(2), conflict.Actual)
				assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
			})

			t.Run("ahead of stored version", func(t *testing.T) {
				err := store.Append(ctx, id, 3, events[3:]...)
				var conflict *shared.ConcurrencyConflictError
				require.ErrorAs(t, err, &conflict)
				assert.Equal(t, int64(2), conflict.Actual)
			})

			version, err := store.Version(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, int64(2), version)
		})
	}
}

func TestEventStore_RejectsBrokenSequence(t *testing.T) {
	for name, newStore := range eventStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, time.Now)
			id := uuid.New()
			events := personHistory(t, id, "Carol White")

			t.Run("gap in versions", func(t *testing.T) {
				err := store.Append(ctx, id, 0, events[0], events[2])
				require.Error(t, err)
				assert.NotErrorIs(t, err, shared.ErrConcurrencyConflict)
			})

			t.Run("foreign aggregate", func(t *testing.T) {
				err := store.Append(ctx, uuid.New(), 0, events[0])
				require.Error(t, err)
				assert.Contains(t, err.Error(), "belongs to aggregate")
			})

			t.Run("nothing to append", func(t *testing.T) {
				require.NoError(t, store.Append(ctx, id, 7))
			})

			version, err := store.Version(ctx, id)
			require.NoError(t, err)
			assert.Zero(t, version)
		})
	}
}

func TestEventStore_ReadAll(t *testing.T) {
	for name, newStore := range eventStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, time.Now)
			alice, bob := uuid.New(), uuid.New()
			aliceEvents := personHistory(t, alice, "Alice Smith")
			bobEvents := personHistory(t, bob, "Bob Jones")

			require.NoError(t, store.Append(ctx, alice, 0, aliceEvents[:2]...))
			require.NoError(t, store.Append(ctx, bob, 0, bobEvents...))
			require.NoError(t, store.Append(ctx, alice, 2, aliceEvents[2:]...))

			all, err := store.ReadAll(ctx, 0, 100)
			require.NoError(t, err)
			require.Len(t, all, 8)
			for i := 1; i < len(all); i++ {
				assert.Greater(t, all[i].Position, all[i-1].Position)
			}
			assert.Equal(t, aliceEvents[0].EventID(), all[0].Event.EventID())
			assert.Equal(t, bobEvents[0].EventID(), all[2].Event.EventID())

			page, err := store.ReadAll(ctx, all[2].Position, 3)
			require.NoError(t, err)
			assert.Equal(t, recordedIDs(all[3:6]), recordedIDs(page))

			rest, err := store.ReadAll(ctx, all[7].Position, 10)
			require.NoError(t, err)
			assert.Empty(t, rest)
		})
	}
}

func TestEventStore_Publication(t *testing.T) {
	for name, newStore := range eventStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, func() time.Time { return t0 })
			id := uuid.New()
			events := personHistory(t, id, "Dana Green")
			require.NoError(t, store.Append(ctx, id, 0, events...))

			due, err := store.FindUnpublished(ctx, t0, 10)
			require.NoError(t, err)
			assert.Equal(t, eventIDs(events), recordedIDs(due))

			require.NoError(t, store.MarkPublished(ctx, t0, events[0].EventID(), events[1].EventID()))

			failed := events[2].EventID()
			require.NoError(t, store.MarkPublishFailed(ctx, failed, "projection down", t0))

			t.Run("failed event waits for its backoff", func(t *testing.T) {
				due, err := store.FindUnpublished(ctx, t0, 10)
				require.NoError(t, err)
				assert.Equal(t, []uuid.UUID{events[3].EventID()}, recordedIDs(due))

				due, err = store.FindUnpublished(ctx, t0.Add(shared.DefaultBaseBackoff), 10)
				require.NoError(t, err)
				require.Len(t, due, 2)
				assert.Equal(t, failed, due[0].Event.EventID())
				assert.Equal(t, 1, due[0].Publication.Attempts)
				assert.Equal(t, "projection down", due[0].Publication.LastError)
			})

			t.Run("limit is honoured", func(t *testing.T) {
				due, err := store.FindUnpublished(ctx, t0.Add(time.Hour), 1)
				require.NoError(t, err)
				assert.Len(t, due, 1)
			})

			t.Run("dead after max attempts and retried on request", func(t *testing.T) {
				for i := 1; i < shared.DefaultMaxPublishAttempts; i++ {
					require.NoError(t, store.MarkPublishFailed(ctx, failed, "projection down", t0))
				}

				due, err := store.FindUnpublished(ctx, t0.Add(24*time.Hour), 10)
				require.NoError(t, err)
				assert.NotContains(t, recordedIDs(due), failed)

				dead, err := store.FindDead(ctx, 10)
				require.NoError(t, err)
				assert.Equal(t, []uuid.UUID{failed}, recordedIDs(dead))

				require.NoError(t, store.RetryDead(ctx, failed))
				due, err = store.FindUnpublished(ctx, t0, 10)
				require.NoError(t, err)
				assert.Contains(t, recordedIDs(due), failed)

				err = store.RetryDead(ctx, failed)
				require.Error(t, err, "only dead events can be retried")
			})

			t.Run("unknown event", func(t *testing.T) {
				err := store.MarkPublishFailed(ctx, uuid.New(), "boom", t0)
				assert.ErrorIs(t, err, shared.ErrNotFound)
			})
		})
	}
}

func TestGormEventStore_DuplicateKeyIsConflict(t *testing.T) {
	db, mock, mockDB := setupMockDB(t)
	defer mockDB.Close()
	store := NewGormEventStore(db, event.NewPersonEventSerializer())

	id := uuid.New()
	events := personHistory(t, id, "Eve Black")

	versionQuery := regexp.QuoteMeta(`SELECT COALESCE(MAX(version), 0) FROM "person_events" WHERE person_id = $1`)
	mock.ExpectBegin()
	mock.ExpectQuery(versionQuery).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "person_events"`)).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()
	mock.ExpectQuery(versionQuery).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1))

	err := store.Append(context.Background(), id, 0, events[0])

	var conflict *shared.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(0), conflict.Expected)
	assert.Equal(t, int64(1), conflict.Actual)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormEventStore_StaleVersionSkipsInsert(t *testing.T) {
	db, mock, mockDB := setupMockDB(t)
	defer mockDB.Close()
	store := NewGormEventStore(db, event.NewPersonEventSerializer())

	id := uuid.New()
	events := personHistory(t, id, "Eve Black")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(version), 0) FROM "person_events"`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(3))
	mock.ExpectRollback()

	err := store.Append(context.Background(), id, 1, events[1])

	var conflict *shared.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(3), conflict.Actual)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormEventStore_FindUnpublishedQuery(t *testing.T) {
	db, mock, mockDB := setupMockDB(t)
	defer mockDB.Close()
	store := NewGormEventStore(db, event.NewPersonEventSerializer())

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT * FROM "person_events" WHERE (published_at IS NULL AND publish_attempts < $1) AND (next_attempt_at IS NULL OR next_attempt_at <= $2) ORDER BY position ASC LIMIT $3`)).
		WithArgs(shared.DefaultMaxPublishAttempts, sqlmock.AnyArg(), 25).
		WillReturnRows(sqlmock.NewRows([]string{"position", "event_id"}))

	due, err := store.FindUnpublished(context.Background(), t0, 25)
	require.NoError(t, err)
	assert.Empty(t, due)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormEventStore_LoadDecodeError(t *testing.T) {
	db, mock, mockDB := setupMockDB(t)
	defer mockDB.Close()
	store := NewGormEventStore(db, event.NewPersonEventSerializer())

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "person_events" WHERE person_id = $1 ORDER BY version ASC`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"position", "event_id", "person_id", "version", "event_type", "payload"}).
			AddRow(1, uuid.New().String(), id.String(), 1, "SomethingElse", []byte(`{}`)))

	_, err := store.Load(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func toPersonEvents(t *testing.T, events []shared.DomainEvent) []person.Event {
	t.Helper()
	out := make([]person.Event, len(events))
	for i, e := range events {
		pe, ok := e.(person.Event)
		if !ok {
			t.Fatalf("event %d is %T, not a person event", i, e)
		}
		out[i] = pe
	}
	return out
}
