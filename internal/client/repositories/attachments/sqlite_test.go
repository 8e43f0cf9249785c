package attachments

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/dmitrijs2005/offsync/internal/client/storage"
	"github.com/dmitrijs2005/offsync/internal/common"
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

func pending(id string, updated int64) *models.Attachment {
	return &models.Attachment{
		ID:           id,
		Filename:     id + ".bin",
		MimeType:     "application/octet-stream",
		Size:         3,
		UploadStatus: models.UploadPending,
		RecordTags:   []string{},
		BlobRef:      "ref-" + id,
		UpdatedAt:    updated,
	}
}

func TestInsertAndGet(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	a := pending("a1", 1)
	a.FriendID = "f1"
	require.NoError(t, r.Insert(ctx, a))
	require.ErrorIs(t, r.Insert(ctx, a), common.ErrAlreadyExists)

	got, err := r.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = r.Get(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestReplace_KeepsLocalBlobRef(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, pending("a1", 1)))

	remote := &models.Attachment{ID: "a1", Filename: "renamed.bin", UploadStatus: models.UploadFailed, UpdatedAt: 2}
	require.NoError(t, r.Replace(ctx, remote))

	got, err := r.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "renamed.bin", got.Filename)
	assert.Equal(t, models.UploadFailed, got.UploadStatus)
	assert.Equal(t, "ref-a1", got.BlobRef, "remote replace must not drop the local payload")
}

func TestPut_ClearsBlobRef(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	a := pending("a1", 1)
	require.NoError(t, r.Put(ctx, a))

	a.BlobRef = ""
	a.UploadStatus = models.UploadUploaded
	a.URL = "http://remote/files/a1"
	require.NoError(t, r.Put(ctx, a))

	got, err := r.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, got.BlobRef)
	assert.Equal(t, "http://remote/files/a1", got.URL)
}

func TestGetAllPendingUpload_OnlyLivePending(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	p1 := pending("p1", 2)
	p2 := pending("p2", 1)
	failed := pending("f1", 1)
	failed.UploadStatus = models.UploadFailed
	uploaded := pending("u1", 1)
	uploaded.UploadStatus = models.UploadUploaded
	gone := pending("d1", 1)
	gone.DeletedAt = models.Int64(3)

	for _, a := range []*models.Attachment{p1, p2, failed, uploaded, gone} {
		require.NoError(t, r.Put(ctx, a))
	}

	got, err := r.GetAllPendingUpload(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p2", got[0].ID, "oldest first")
	assert.Equal(t, "p1", got[1].ID)
}

func TestListByStatus(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	a := pending("a", 1)
	a.UploadStatus = models.UploadUploading
	require.NoError(t, r.Put(ctx, a))
	require.NoError(t, r.Put(ctx, pending("b", 2)))

	got, err := r.ListByStatus(ctx, models.UploadUploading)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestListByFriendAndCountByBlobRef(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	a := pending("a", 1)
	a.FriendID = "f1"
	b := pending("b", 2)
	b.FriendID = "f1"
	b.BlobRef = a.BlobRef
	c := pending("c", 3)
	c.FriendID = "f2"
	for _, x := range []*models.Attachment{a, b, c} {
		require.NoError(t, r.Put(ctx, x))
	}

	byFriend, err := r.ListByFriend(ctx, "f1")
	require.NoError(t, err)
	assert.Len(t, byFriend, 2)

	n, err := r.CountByBlobRef(ctx, a.BlobRef)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, r.Delete(ctx, "a"))
	n, err = r.CountByBlobRef(ctx, a.BlobRef)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := r.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
