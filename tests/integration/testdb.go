//go:build integration

// Package integration runs the NexuPay stores, migrations and the statement
// replayer against real PostgreSQL and Redis containers.
package integration

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/migration"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/persistence"
)

// TestDB is a PostgreSQL container with its connections
type TestDB struct {
	*persistence.Database
	SQL       *sql.DB
	Container testcontainers.Container
	DSN       string
}

// NewEmptyTestDB starts a fresh PostgreSQL container without applying migrations
func NewEmptyTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("nexupay_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	logLevel := "silent"
	if os.Getenv("TEST_DB_DEBUG") != "" {
		logLevel = "debug"
	}
	db, err := persistence.Open(gormpostgres.Open(dsn), persistence.Options{LogLevel: logLevel})
	require.NoError(t, err, "Failed to connect to database")
	sqlDB, err := db.SQL()
	require.NoError(t, err)

	tdb := &TestDB{Database: db, SQL: sqlDB, Container: container, DSN: dsn}
	t.Cleanup(func() {
		_ = tdb.Close()
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})
	return tdb
}

// NewTestDB starts a PostgreSQL container with every migration applied
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	tdb := NewEmptyTestDB(t)

	m, err := migration.New(tdb.SQL, MigrationsPath(t), nil)
	require.NoError(t, err)
	require.NoError(t, m.Up(), "Failed to run migrations")
	return tdb
}

// MigrationsPath locates migrations/ from this file's directory upwards
func MigrationsPath(t *testing.T) string {
	t.Helper()
	return repoPath(t, "migrations")
}

func repoPath(t *testing.T, name string) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok)

	dir := filepath.Dir(filename)
	for range 5 {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
		dir = filepath.Dir(dir)
	}
	t.Fatalf("could not find %s", name)
	return ""
}
