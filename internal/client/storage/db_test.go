package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	require.NoError(t, err, "tableExists query failed")
	return n > 0
}

func TestOpen_CreatesSchema(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "offsync.db")

	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.PingContext(ctx))

	for _, name := range []string{"goose_db_version", "friends", "attachments", "record_tags", "outbox", "sync_state"} {
		require.True(t, tableExists(t, db, name), "expected table %s after migrations", name)
	}
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "offsync.db")

	db, err := sql.Open(DriverName, dsn)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(ctx, db), "first run")
	require.NoError(t, RunMigrations(ctx, db), "second run should be idempotent")
	require.True(t, tableExists(t, db, "outbox"))
}

func TestOpen_InMemory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, `INSERT INTO sync_state(key, last_seq) VALUES ('default', 4)`)
	require.NoError(t, err)

	var got int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT last_seq FROM sync_state WHERE key='default'`).Scan(&got))
	require.Equal(t, int64(4), got)
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "offsync.db")

	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO friends(id, name, age, updated_at) VALUES ('a', 'X', 1, 1)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	var tags string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT record_tags FROM friends WHERE id='a'`).Scan(&tags))
	require.Equal(t, "[]", tags)
}
