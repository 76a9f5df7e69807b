package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/persona/backend/internal/infrastructure/config"
	"github.com/persona/backend/internal/infrastructure/logger"
	"github.com/persona/backend/internal/infrastructure/migration"
	"github.com/persona/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

// defaultSourceDir is where `create` writes new migrations; they are
// compiled in on the next build
const defaultSourceDir = "internal/infrastructure/migration/sql"

// schemaCommand runs against a postgres schema
type schemaCommand func(m *migration.Migrator, args []string, log *zap.Logger) error

var schemaCommands = map[string]schemaCommand{
	"up":   func(m *migration.Migrator, _ []string, _ *zap.Logger) error { return m.Up() },
	"down": func(m *migration.Migrator, _ []string, _ *zap.Logger) error { return m.Down() },
	"step": func(m *migration.Migrator, args []string, _ *zap.Logger) error {
		n, err := intArg(args, "step <n>")
		if err != nil {
			return err
		}
		return m.Steps(n)
	},
	"goto": func(m *migration.Migrator, args []string, _ *zap.Logger) error {
		v, err := intArg(args, "goto <version>")
		if err != nil {
			return err
		}
		if v < 0 {
			return fmt.Errorf("version must not be negative")
		}
		return m.GoTo(uint(v))
	},
	"version": func(m *migration.Migrator, _ []string, log *zap.Logger) error {
		st, err := m.Status()
		if err != nil {
			return err
		}
		log.Info("schema version",
			zap.Uint("version", st.Version),
			zap.Bool("dirty", st.Dirty),
			zap.Int("embedded_migrations", st.Embedded),
		)
		return nil
	},
	"force": func(m *migration.Migrator, args []string, _ *zap.Logger) error {
		v, err := intArg(args, "force <version>")
		if err != nil {
			return err
		}
		return m.Force(v)
	},
	"drop": func(m *migration.Migrator, args []string, _ *zap.Logger) error {
		if len(args) == 0 || (args[0] != "-confirm" && args[0] != "--confirm") {
			return errors.New("drop deletes the person event log; rerun as 'migrate drop -confirm'")
		}
		return m.Drop()
	},
}

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./config.toml when present)")
	sourceDir := flag.String("dir", defaultSourceDir, "Directory new migrations are written to")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{
		Level:      *logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
		Service:    "persona-migrate",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(args[0], args[1:], *configPath, *sourceDir, log); err != nil {
		log.Error("migrate failed", zap.String("command", args[0]), zap.Error(err))
		_ = logger.Sync(log)
		os.Exit(1)
	}
	_ = logger.Sync(log)
}

func run(command string, args []string, configPath, sourceDir string, log *zap.Logger) error {
	switch command {
	case "create":
		if len(args) == 0 {
			return errors.New("usage: migrate create <name> [description]")
		}
		description := ""
		if len(args) > 1 {
			description = args[1]
		}
		mf, err := migration.CreateMigration(sourceDir, args[0], description)
		if err != nil {
			return err
		}
		log.Info("migration created", zap.String("up", mf.UpPath), zap.String("down", mf.DownPath))
		return nil
	case "list":
		stems, err := migration.Embedded()
		if err != nil {
			return err
		}
		for _, stem := range stems {
			fmt.Println(stem)
		}
		return nil
	}

	schemaCmd, ok := schemaCommands[command]
	if !ok {
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// sqlite has no versioned schema; the tables come from the models
	if cfg.Database.Driver == config.DriverSQLite {
		if command != "up" {
			return fmt.Errorf("%s is not supported for sqlite, only up", command)
		}
		db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(log, logger.MapGormLogLevel(cfg.Log.Level)))
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.AutoMigrate(); err != nil {
			return err
		}
		log.Info("sqlite schema is current", zap.String("path", cfg.Database.Path))
		return nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, log)
	if err != nil {
		return err
	}
	defer m.Close()
	return schemaCmd(m, args, log)
}

func intArg(args []string, usage string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("usage: migrate %s", usage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("usage: migrate %s: %w", usage, err)
	}
	return n, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Persona schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply pending migrations (sqlite: create the tables)
  down                  Roll back every migration
  step <n>              Apply n migrations, negative n rolls back
  goto <version>        Migrate to version
  version               Show the applied version
  force <version>       Mark version as applied after a manual fix
  drop -confirm         Drop every table, the event log included
  create <name> [desc]  Write a new migration pair into -dir
  list                  List the migrations compiled into this binary

Flags:
  -config string        Path to config file
  -dir string           Directory for new migrations
  -log-level string     debug, info, warn or error

The database is configured through the PERSONA_DATABASE_* environment
variables or the config file.
`)
}
