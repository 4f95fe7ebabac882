//go:build integration

package migrate

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/txn2/mcp-interviewer/pkg/interview"
	"github.com/txn2/mcp-interviewer/pkg/question"
	questionpg "github.com/txn2/mcp-interviewer/pkg/question/postgres"
	"github.com/txn2/mcp-interviewer/pkg/session"
	sessionpg "github.com/txn2/mcp-interviewer/pkg/session/postgres"
)

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

	t.Run("Run applies migrations", func(t *testing.T) {
		require.NoError(t, Run(db))

		for _, table := range []string{"sessions", "questions"} {
			require.True(t, tableExists(t, db, table), "%s table should exist", table)
		}
	})

	t.Run("Version returns current version", func(t *testing.T) {
		version, dirty, err := Version(db)
		require.NoError(t, err)
		require.False(t, dirty)
		require.Equal(t, uint(2), version)
	})

	t.Run("Run is idempotent", func(t *testing.T) {
		require.NoError(t, Run(db))

		version, dirty, err := Version(db)
		require.NoError(t, err)
		require.False(t, dirty)
		require.Equal(t, uint(2), version)
	})

	t.Run("session store round trip", func(t *testing.T) {
		store := sessionpg.New(db)
		now := time.Now().UTC().Truncate(time.Microsecond)
		sess := &session.Session{
			ID:           "it-session",
			State:        interview.StateAwaitingReady,
			Coverage:     map[question.Topic]int{},
			CreatedAt:    now,
			LastActiveAt: now,
			ExpiresAt:    now.Add(time.Hour),
		}
		require.NoError(t, store.Create(ctx, sess))

		got, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		require.NotNil(t, got)

		got.SetQuestion("oop-encap")
		got.State = interview.StateAwaitingAnswer
		require.NoError(t, store.Save(ctx, got))
		assert.Equal(t, int64(1), got.Version)

		stale := got.Clone()
		stale.Version = 0
		assert.ErrorIs(t, store.Save(ctx, stale), session.ErrConflict)

		require.NoError(t, store.Delete(ctx, sess.ID))
		assert.ErrorIs(t, store.Save(ctx, got), session.ErrNotFound)
	})

	t.Run("question store round trip", func(t *testing.T) {
		bank, err := question.LoadDefault()
		require.NoError(t, err)

		store := questionpg.New(db)
		require.NoError(t, store.Seed(ctx, bank.All()))

		main, err := store.List(ctx, question.Filter{MainOnly: true})
		require.NoError(t, err)
		assert.NotEmpty(t, main)

		first := bank.All()[0]
		got, err := store.Get(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, first.Prompt, got.Prompt)
		assert.Len(t, got.Rubric.Criteria, len(first.Rubric.Criteria))
	})

	t.Run("Down rolls back migrations", func(t *testing.T) {
		require.NoError(t, Down(db))
		assert.False(t, tableExists(t, db, "sessions"), "sessions table should not exist after down")
	})

	t.Run("Steps applies n migrations", func(t *testing.T) {
		require.NoError(t, Steps(db, 1))

		version, _, err := Version(db)
		require.NoError(t, err)
		require.Equal(t, uint(1), version)

		require.NoError(t, Steps(db, 1))

		version, _, err = Version(db)
		require.NoError(t, err)
		require.Equal(t, uint(2), version)
	})
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = $1
		)
	`, table).Scan(&exists)
	require.NoError(t, err)
	return exists
}
