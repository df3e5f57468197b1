package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/orchestra/pkg/persistence"
	"github.com/dukex/orchestra/pkg/persistence/persistencetest"
	"github.com/dukex/orchestra/pkg/persistence/postgresql"
	"github.com/dukex/orchestra/pkg/persistence/sqlbase"
	"github.com/dukex/orchestra/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"workflow_executions", "workflows", sqlbase.MigrationsTable} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())
}

func setupTestDB(t *testing.T) *postgresql.Persistence {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	databaseURL := testutil.PostgresURL(t)
	dropDb(ctx, t, databaseURL)

	p, err := postgresql.NewPersistence(ctx, slog.Default(), databaseURL)
	require.NoError(t, err)

	return p
}

func TestPersistence(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		return setupTestDB(t)
	})
}

func TestPersistence_MigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	p := setupTestDB(t)
	require.NoError(t, p.Close(ctx))

	again, err := postgresql.NewPersistence(ctx, slog.Default(), testutil.PostgresURL(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = again.Close(ctx)
	})

	db, err := sql.Open("postgres", testutil.PostgresURL(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	var applied int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+sqlbase.MigrationsTable).Scan(&applied))
	assert.Equal(t, 2, applied)
}
