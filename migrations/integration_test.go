package main

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRunner starts a fresh postgres container with no schema applied, so
// the tests observe the runner taking the database from empty to migrated
// and back.
func setupRunner(t *testing.T) (*Runner, *sql.DB) {
	t.Helper()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("xray_migrator_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(120*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := &Config{
		DatabaseURL:    connStr,
		MigrationTable: "schema_migrations",
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	runner, err := NewRunner(cfg, logger)
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = runner.Close()
		_ = db.Close()
		_ = testcontainers.TerminateContainer(pgContainer)
	})

	return runner, db
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()

	var exists bool

	err := db.QueryRow(
		`SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`, table).Scan(&exists)
	require.NoError(t, err)

	return exists
}

func appliedVersion(t *testing.T, db *sql.DB) (int, bool) {
	t.Helper()

	var (
		version int
		dirty   bool
	)

	err := db.QueryRow("SELECT version, dirty FROM schema_migrations").Scan(&version, &dirty)
	require.NoError(t, err)

	return version, dirty
}

func TestRunnerUpAppliesFullSchema(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	runner, db := setupRunner(t)

	require.NoError(t, runner.Up())

	for _, table := range []string{"runs", "steps", "payloads"} {
		assert.True(t, tableExists(t, db, table), "table %s should exist after up", table)
	}

	version, dirty := appliedVersion(t, db)
	assert.Equal(t, 3, version)
	assert.False(t, dirty)

	// A second up is a no-op, not an error.
	require.NoError(t, runner.Up())

	require.NoError(t, runner.Status())
	require.NoError(t, runner.Version())
}

func TestRunnerDownRollsBackOneMigration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	runner, db := setupRunner(t)

	require.NoError(t, runner.Up())
	require.NoError(t, runner.Down())

	assert.False(t, tableExists(t, db, "payloads"))
	assert.True(t, tableExists(t, db, "steps"))
	assert.True(t, tableExists(t, db, "runs"))

	version, dirty := appliedVersion(t, db)
	assert.Equal(t, 2, version)
	assert.False(t, dirty)

	// Re-applying restores the rolled-back table.
	require.NoError(t, runner.Up())
	assert.True(t, tableExists(t, db, "payloads"))
}

func TestRunnerStatusOnEmptyDatabase(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	runner, _ := setupRunner(t)

	require.NoError(t, runner.Status())
	require.NoError(t, runner.Version())
}

func TestRunnerDropRemovesEverything(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	runner, db := setupRunner(t)

	require.NoError(t, runner.Up())
	require.NoError(t, runner.Drop())

	for _, table := range []string{"runs", "steps", "payloads", "schema_migrations"} {
		assert.False(t, tableExists(t, db, table), "table %s should be gone after drop", table)
	}
}

func TestRunnerDownOnEmptyDatabaseIsNoop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	runner, _ := setupRunner(t)

	require.NoError(t, runner.Down())
}
