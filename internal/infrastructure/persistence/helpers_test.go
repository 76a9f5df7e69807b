package persistence

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/shared"
	"github.com/persona/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// setupSQLite opens a migrated in-memory database
func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// setupMockDB opens GORM over sqlmock with the postgres dialect
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock, mockDB
}

// personHistory returns the events of a person created, given two
// attributes and deactivated
func personHistory(t *testing.T, id uuid.UUID, name string) []shared.DomainEvent {
	t.Helper()
	d := person.NewDecider(nil)
	meta := func(at time.Time) person.CommandMeta {
		return person.CommandMeta{PersonID: id, CommandID: uuid.New(), IssuedAt: at, Actor: "clerk"}
	}
	height, err := person.NewMeasurement(decimal.NewFromInt(180), "cm")
	require.NoError(t, err)

	var (
		p      person.Person
		events []shared.DomainEvent
	)
	for i, cmd := range []person.Command{
		person.CreatePerson{CommandMeta: meta(t0), LegalName: name},
		person.RecordAttribute{CommandMeta: meta(t0.Add(time.Hour)), Type: person.Height, Value: height, Source: person.SourceClinicalRecord},
		person.RecordAttribute{CommandMeta: meta(t0.Add(2 * time.Hour)), Type: person.BirthDate, Value: person.NewDate(1990, time.May, 4), Source: person.SourceDocumentVerified},
		person.DeactivatePerson{CommandMeta: meta(t0.Add(3 * time.Hour)), Reason: "moved abroad"},
	} {
		out, err := d.Handle(p, cmd)
		require.NoError(t, err, "command %d", i)
		for _, e := range out {
			p = person.Apply(p, e)
			events = append(events, e)
		}
	}
	return events
}

func eventIDs(events []shared.DomainEvent) []uuid.UUID {
	ids := make([]uuid.UUID, len(events))
	for i, e := range events {
		ids[i] = e.EventID()
	}
	return ids
}

func recordedIDs(records []shared.RecordedEvent) []uuid.UUID {
	ids := make([]uuid.UUID, len(records))
	for i, r := range records {
		ids[i] = r.Event.EventID()
	}
	return ids
}
