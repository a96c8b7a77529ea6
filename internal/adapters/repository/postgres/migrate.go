package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every up migration in name order. The statements are
// idempotent, so running it on an already migrated database is a no-op.
func Migrate(ctx context.Context, db *sql.DB) error {
	names, err := upMigrations()
	if err != nil {
		return err
	}

	for _, name := range names {
		if err := execMigration(ctx, db, name); err != nil {
			return err
		}
	}

	slog.Info("Database migrations applied", "count", len(names))
	return nil
}

// MigrateNamed applies the single migration file whose name matches name,
// e.g. "create_polls.up" or "000002_create_poll_options.down".
func MigrateNamed(ctx context.Context, db *sql.DB, name string) error {
	file, err := migrationFileName(name)
	if err != nil {
		return err
	}
	return execMigration(ctx, db, file)
}

func upMigrations() ([]string, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "up.sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func migrationFileName(name string) (string, error) {
	regex, err := regexp.Compile(fmt.Sprintf(`^.*%s\.sql$`, regexp.QuoteMeta(name)))
	if err != nil {
		return "", fmt.Errorf("invalid migration name %q: %w", name, err)
	}

	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return "", fmt.Errorf("failed to read migrations directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && regex.MatchString(entry.Name()) {
			return entry.Name(), nil
		}
	}

	return "", fmt.Errorf("migration file not found: %s", name)
}

func execMigration(ctx context.Context, db *sql.DB, file string) error {
	content, err := migrationFiles.ReadFile("migrations/" + file)
	if err != nil {
		return fmt.Errorf("failed to read migration file %s: %w", file, err)
	}

	if _, err := db.ExecContext(ctx, string(content)); err != nil {
		return classify(fmt.Sprintf("execute migration %s", file), err)
	}
	return nil
}
