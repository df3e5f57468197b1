// Package sqlbase applies versioned schema migrations to PostgreSQL databases.
package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// MigrationsTable records the applied schema versions.
const MigrationsTable = "orchestra_schema_migrations"

// migrationLock is the advisory lock id held while migrating, so orchestrators started
// together against one database apply each version once.
const migrationLock = 73_110_425

// Migrator applies the pending entries of a version to statement map.
type Migrator struct {
	db         *sql.DB
	logger     *slog.Logger
	migrations map[int]string
}

func NewMigrator(logger *slog.Logger, db *sql.DB, migrations map[int]string) *Migrator {
	return &Migrator{
		db:         db,
		logger:     logger,
		migrations: migrations,
	}
}

// Latest is the highest known version, 0 without migrations.
func (m *Migrator) Latest() int {
	if len(m.migrations) == 0 {
		return 0
	}

	return slices.Max(slices.Collect(maps.Keys(m.migrations)))
}

// Migrate applies every migration newer than the recorded version in one transaction.
func (m *Migrator) Migrate(ctx context.Context) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLock)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	_, err = tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+MigrationsTable+` (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", MigrationsTable, err)
	}

	var current int

	err = tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM "+MigrationsTable).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	pending := m.pending(current)
	m.logger.InfoContext(ctx, "Migrating schema", "version", current, "pending", len(pending))

	for _, version := range pending {
		_, err = tx.ExecContext(ctx, m.migrations[version])
		if err != nil {
			return fmt.Errorf("migration %d failed: %w", version, err)
		}

		_, err = tx.ExecContext(ctx, "INSERT INTO "+MigrationsTable+" (version) VALUES ($1)", version)
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		m.logger.DebugContext(ctx, "Applied migration", "version", version)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}

	return nil
}

func (m *Migrator) pending(after int) []int {
	versions := slices.Collect(maps.Keys(m.migrations))
	slices.Sort(versions)

	idx, _ := slices.BinarySearch(versions, after+1)

	return versions[idx:]
}
