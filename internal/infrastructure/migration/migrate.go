package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// SourceDir is the directory, relative to this package, holding the SQL
// migrations compiled into the binary
const SourceDir = "sql"

// VersionTable records the applied schema version
const VersionTable = "persona_schema_migrations"

//go:embed sql/*.sql
var migrations embed.FS

// Migrator applies the embedded schema of the event log and read models
type Migrator struct {
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// Status is the schema state reported by the version command
type Status struct {
	Version  uint
	Dirty    bool
	Embedded int
}

// Source returns the embedded migrations as a golang-migrate source
func Source() (source.Driver, error) {
	src, err := iofs.New(migrations, SourceDir)
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return src, nil
}

// New creates a Migrator over an open postgres connection
func New(db *sql.DB, logger *zap.Logger) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: VersionTable})
	if err != nil {
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}
	src, err := Source()
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return newMigrator(m, logger), nil
}

// NewFromURL creates a Migrator from a postgres:// URL. The version table
// is read from the x-migrations-table parameter, VersionTable by default.
func NewFromURL(databaseURL string, logger *zap.Logger) (*Migrator, error) {
	if !strings.Contains(databaseURL, "x-migrations-table=") {
		sep := "?"
		if strings.Contains(databaseURL, "?") {
			sep = "&"
		}
		databaseURL += sep + "x-migrations-table=" + VersionTable
	}
	src, err := Source()
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return newMigrator(m, logger), nil
}

func newMigrator(m *migrate.Migrate, logger *zap.Logger) *Migrator {
	logger = logger.Named("migrate")
	m.Log = zapMigrateLogger{logger.Sugar()}
	return &Migrator{migrate: m, logger: logger}
}

// zapMigrateLogger forwards golang-migrate's progress lines to zap
type zapMigrateLogger struct {
	log *zap.SugaredLogger
}

func (l zapMigrateLogger) Printf(format string, v ...any) {
	l.log.Debugf(strings.TrimSuffix(format, "\n"), v...)
}

func (l zapMigrateLogger) Verbose() bool {
	return l.log.Desugar().Core().Enabled(zap.DebugLevel)
}

// apply runs op and logs the resulting version; ErrNoChange is success
func (m *Migrator) apply(op string, fn func() error) error {
	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("schema already current", zap.String("op", op))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", op, err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	m.logger.Info("schema migrated",
		zap.String("op", op),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// Up applies every pending migration
func (m *Migrator) Up() error {
	return m.apply("up", m.migrate.Up)
}

// Down rolls back every migration, dropping the event log tables
func (m *Migrator) Down() error {
	return m.apply("down", m.migrate.Down)
}

// Steps applies n migrations; negative n rolls back
func (m *Migrator) Steps(n int) error {
	return m.apply(fmt.Sprintf("steps %d", n), func() error { return m.migrate.Steps(n) })
}

// GoTo migrates up or down to version
func (m *Migrator) GoTo(version uint) error {
	return m.apply(fmt.Sprintf("goto %d", version), func() error { return m.migrate.Migrate(version) })
}

// Version returns the applied version; zero when nothing is applied
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

// Status reports the applied version next to the number of embedded
// migrations
func (m *Migrator) Status() (Status, error) {
	version, dirty, err := m.Version()
	if err != nil {
		return Status{}, err
	}
	stems, err := Embedded()
	if err != nil {
		return Status{}, err
	}
	return Status{Version: version, Dirty: dirty, Embedded: len(stems)}, nil
}

// Force records version as applied without running anything. It is the
// way out of a dirty state after a failed migration was fixed by hand.
func (m *Migrator) Force(version int) error {
	m.logger.Warn("forcing schema version", zap.Int("version", version))
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Drop removes every table in the schema, the event log included
func (m *Migrator) Drop() error {
	m.logger.Warn("dropping schema")
	if err := m.migrate.Drop(); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return nil
}

// Close releases the source and the database driver
func (m *Migrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	return errors.Join(srcErr, dbErr)
}
