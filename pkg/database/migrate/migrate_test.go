//go:build integration

package migrate

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const latestVersion = 3

func TestMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:15",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() { _ = pgContainer.Terminate(ctx) }()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	tableExists := func(t *testing.T, name string) bool {
		t.Helper()
		var exists bool
		err := db.QueryRow(`
			SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_name = $1
			)
		`, name).Scan(&exists)
		require.NoError(t, err)
		return exists
	}

	t.Run("Run applies migrations", func(t *testing.T) {
		require.NoError(t, Run(db))
		for _, table := range []string{"notification_slots", "notifications", "user_sessions"} {
			require.True(t, tableExists(t, table), "%s table should exist", table)
		}
	})

	t.Run("Version returns current version", func(t *testing.T) {
		version, dirty, err := Version(db)
		require.NoError(t, err)
		require.False(t, dirty)
		require.Equal(t, uint(latestVersion), version)
	})

	t.Run("Run is idempotent", func(t *testing.T) {
		require.NoError(t, Run(db))
	})

	t.Run("slot state is constrained", func(t *testing.T) {
		_, err := db.Exec(`INSERT INTO notification_slots (recipient_id, project_id, state, updated_at)
			VALUES ('u1', 'p1', 'bogus', NOW())`)
		require.Error(t, err)
	})

	t.Run("Steps rolls back one", func(t *testing.T) {
		require.NoError(t, Steps(db, -1))
		require.False(t, tableExists(t, "user_sessions"))
		require.NoError(t, Steps(db, 1))
		require.True(t, tableExists(t, "user_sessions"))
	})

	t.Run("Down rolls back all", func(t *testing.T) {
		require.NoError(t, Down(db))
		require.False(t, tableExists(t, "notification_slots"))
	})
}
