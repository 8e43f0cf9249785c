package syncstate

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dmitrijs2005/offsync/internal/client/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestGet_MissingKeyIsZero(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	seq, err := r.Get(context.Background(), "default")
	require.NoError(t, err)
	assert.Zero(t, seq) // контракт: 0, если курсора ещё нет
}

func TestSet_Upserts(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "default", 10))
	require.NoError(t, r.Set(ctx, "default", 11))
	require.NoError(t, r.Set(ctx, "archive", 3))

	seq, err := r.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, int64(11), seq)

	all, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"default": 11, "archive": 3}, all)
}

func TestDelete_ResetsCursor(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "default", 7))
	require.NoError(t, r.Delete(ctx, "default"))
	require.NoError(t, r.Delete(ctx, "default"))

	seq, err := r.Get(ctx, "default")
	require.NoError(t, err)
	assert.Zero(t, seq)
}

func TestErrorsAreWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "k")
	require.ErrorContains(t, err, "failed to get sync_state[k]")

	err = r.Set(ctx, "k", 1)
	require.ErrorContains(t, err, "failed to set sync_state[k]")

	_, err = r.List(ctx)
	require.ErrorContains(t, err, "failed to list sync_state")
}
