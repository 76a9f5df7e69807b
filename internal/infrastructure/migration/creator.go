package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"
)

const migrationUpTemplate = `-- Migration: {{.Name}}
-- Description: {{.Description}}
-- Created: {{.Timestamp}}

-- person_events is append-only: add columns with defaults, never rewrite payloads

`

const migrationDownTemplate = `-- Migration: {{.Name}} (Rollback)
-- Created: {{.Timestamp}}

`

// MigrationFile represents a migration file pair
type MigrationFile struct {
	Version     string
	Name        string
	Description string
	Timestamp   string
	UpPath      string
	DownPath    string
}

// CreateMigration writes an empty up/down pair into migrationsDir. The
// version is the current UTC time so new files sort after the embedded ones.
func CreateMigration(migrationsDir, name, description string) (*MigrationFile, error) {
	baseName := sanitizeName(name)
	if baseName == "" {
		return nil, errors.New("migration name must contain letters or digits")
	}
	if err := os.MkdirAll(migrationsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	existing, err := ListMigrations(os.DirFS(migrationsDir))
	if err != nil {
		return nil, err
	}
	for _, m := range existing {
		if nameOf(m) == baseName {
			return nil, fmt.Errorf("migration %q already exists as %s", baseName, m)
		}
	}

	now := time.Now().UTC()
	mf := &MigrationFile{
		Version:     now.Format("20060102150405"),
		Name:        baseName,
		Description: description,
		Timestamp:   now.Format(time.RFC3339),
	}
	stem := mf.Version + "_" + baseName
	mf.UpPath = filepath.Join(migrationsDir, stem+".up.sql")
	mf.DownPath = filepath.Join(migrationsDir, stem+".down.sql")

	if err := createMigrationFile(mf.UpPath, migrationUpTemplate, mf); err != nil {
		return nil, fmt.Errorf("failed to create up migration: %w", err)
	}
	if err := createMigrationFile(mf.DownPath, migrationDownTemplate, mf); err != nil {
		_ = os.Remove(mf.UpPath)
		return nil, fmt.Errorf("failed to create down migration: %w", err)
	}
	return mf, nil
}

func createMigrationFile(path, tmplContent string, data *MigrationFile) error {
	tmpl, err := template.New("migration").Parse(tmplContent)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

// sanitizeName converts a migration name to snake case
func sanitizeName(name string) string {
	result := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			result = append(result, c)
		case c >= 'A' && c <= 'Z':
			result = append(result, c+'a'-'A')
		case c == ' ' || c == '-' || c == '_':
			if len(result) > 0 && result[len(result)-1] != '_' {
				result = append(result, '_')
			}
		}
	}
	return strings.TrimSuffix(string(result), "_")
}

// nameOf strips the version prefix from a migration stem
func nameOf(stem string) string {
	if _, name, ok := strings.Cut(stem, "_"); ok {
		return name
	}
	return stem
}

// ListMigrations returns the sorted stems of the up migrations in fsys. A
// missing directory yields an empty list.
func ListMigrations(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	stems := make([]string, 0, len(entries)/2)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if stem, ok := strings.CutSuffix(entry.Name(), ".up.sql"); ok {
			stems = append(stems, stem)
		}
	}
	sort.Strings(stems)
	return stems, nil
}

// CheckPairs reports every up migration in fsys without a matching down file
func CheckPairs(fsys fs.FS) error {
	stems, err := ListMigrations(fsys)
	if err != nil {
		return err
	}
	var errs []error
	for _, stem := range stems {
		if _, err := fs.Stat(fsys, stem+".down.sql"); err != nil {
			errs = append(errs, fmt.Errorf("migration %s has no down file", stem))
		}
	}
	return errors.Join(errs...)
}

// Embedded returns the stems of the migrations compiled into the binary
func Embedded() ([]string, error) {
	sub, err := fs.Sub(migrations, SourceDir)
	if err != nil {
		return nil, err
	}
	return ListMigrations(sub)
}
