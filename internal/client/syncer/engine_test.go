package syncer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/offsync/internal/client/attachments"
	"github.com/dmitrijs2005/offsync/internal/client/blobs"
	"github.com/dmitrijs2005/offsync/internal/client/capture"
	"github.com/dmitrijs2005/offsync/internal/client/models"
	attachmentrepo "github.com/dmitrijs2005/offsync/internal/client/repositories/attachments"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/friends"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/syncstate"
	"github.com/dmitrijs2005/offsync/internal/client/storage"
	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote records pushes and pulls and answers from canned data.
type fakeRemote struct {
	mu      sync.Mutex
	pushes  [][]*models.OutboxEntry
	ack     func(batch []*models.OutboxEntry) []string
	pushErr error
	pulls   []models.PullRequest
	batches []*models.PullResponse
	pullErr error
	entered chan struct{}
	release chan struct{}
}

func (f *fakeRemote) Push(ctx context.Context, entries []*models.OutboxEntry) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, entries)
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	if f.ack != nil {
		return f.ack(entries), nil
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ChangeID)
	}
	return ids, nil
}

func (f *fakeRemote) Pull(ctx context.Context, since int64, limit int) (*models.PullResponse, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, models.PullRequest{SinceSeq: since, Limit: limit})
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	if len(f.batches) == 0 {
		return &models.PullResponse{NewSeq: since}, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type env struct {
	db       *sql.DB
	rec      *capture.Recorder
	friends  *capture.Friends
	pipeline *attachments.Pipeline
	blobs    *blobs.Store
	uploader *fakeUploader
	remote   *fakeRemote
	clock    *clock
	engine   *Engine
}

type fakeUploader struct {
	err   error
	calls int
}

func (u *fakeUploader) Upload(ctx context.Context, req models.UploadRequest) (string, error) {
	u.calls++
	if u.err != nil {
		return "", u.err
	}
	return "http://remote/files/" + req.ID, nil
}

func setup(t *testing.T, opts Options) *env {
	t.Helper()
	db, err := storage.Open(context.Background(), ":memory:")
	require.NoError(t, err)

	clk := &clock{t: time.UnixMilli(1_000_000)}
	rec := capture.NewRecorder(db, logging.Discard(), capture.WithClock(clk.Now))
	t.Cleanup(func() {
		_ = rec.Close()
		_ = db.Close()
	})

	store, err := blobs.NewStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	up := &fakeUploader{}
	remote := &fakeRemote{}
	fr := capture.NewFriends(rec)
	at := capture.NewAttachments(rec)
	pipeline := attachments.NewPipeline(db, at, store, up, logging.Discard())

	opts.Now = clk.Now
	engine := NewEngine(db, rec, remote, pipeline, []Applier{fr, capture.NewTags(rec), at}, opts, logging.Discard())

	return &env{db: db, rec: rec, friends: fr, pipeline: pipeline, blobs: store, uploader: up, remote: remote, clock: clk, engine: engine}
}

func (e *env) outbox(t *testing.T) []*models.OutboxEntry {
	t.Helper()
	list, err := outbox.NewSQLiteRepository(e.db).List(context.Background())
	require.NoError(t, err)
	return list
}

func (e *env) cursor(t *testing.T) int64 {
	t.Helper()
	seq, err := syncstate.NewSQLiteRepository(e.db).Get(context.Background(), DefaultCollection)
	require.NoError(t, err)
	return seq
}

func (e *env) totalChanges(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.QueryRow(`SELECT total_changes()`).Scan(&n))
	return n
}

func upsert(table models.Table, pk, data string) models.RemoteChange {
	return models.RemoteChange{Table: table, Op: models.OpUpsert, PK: pk, Data: json.RawMessage(data)}
}

func TestSyncOnce_CreateThenPushDrainsOutbox(t *testing.T) {
	e := setup(t, Options{})
	ctx := context.Background()

	require.NoError(t, e.friends.Create(ctx, &models.Friend{ID: "a", Name: "X"}))
	list := e.outbox(t)
	require.Len(t, list, 1)
	assert.Equal(t, models.OpUpsert, list[0].Op)
	assert.Equal(t, "a", list[0].PrimaryKey)

	res, err := e.engine.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)
	assert.Empty(t, e.outbox(t))
	require.Len(t, e.remote.pushes, 1)
}

func TestSyncOnce_PullTwoBatches(t *testing.T) {
	e := setup(t, Options{})
	ctx := context.Background()

	e.remote.batches = []*models.PullResponse{
		{
			Changes: []models.RemoteChange{
				upsert(models.TableFriends, "a", `{"id":"a","name":"A","updatedAt":1}`),
				upsert(models.TableFriends, "b", `{"id":"b","name":"B","updatedAt":1}`),
				upsert(models.TableFriends, "c", `{"id":"c","name":"C","updatedAt":1}`),
			},
			NewSeq:  10,
			HasMore: true,
		},
		{
			Changes: []models.RemoteChange{{Table: models.TableFriends, Op: models.OpDelete, PK: "b"}},
			NewSeq:  11,
		},
	}

	res, err := e.engine.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Applied)
	assert.Equal(t, 2, res.Batches)
	assert.Equal(t, int64(11), res.Cursor)
	assert.Equal(t, int64(11), e.cursor(t))

	assert.Equal(t, []models.PullRequest{{SinceSeq: 0, Limit: 500}, {SinceSeq: 10, Limit: 500}}, e.remote.pulls)

	list, err := friends.NewSQLiteRepository(e.db).List(ctx, true)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].Name)
	assert.Equal(t, "C", list[1].Name)

	assert.Empty(t, e.outbox(t), "applying remote changes captures nothing")
}

func TestSyncOnce_ReapplyingBatchIsIdempotent(t *testing.T) {
	e := setup(t, Options{})
	ctx := context.Background()

	batch := func(seq int64) *models.PullResponse {
		return &models.PullResponse{
			Changes: []models.RemoteChange{
				upsert(models.TableFriends, "a", `{"id":"a","name":"A","age":3,"updatedAt":5}`),
				{Table: models.TableFriends, Op: models.OpDelete, PK: "z"},
			},
			NewSeq: seq,
		}
	}

	e.remote.batches = []*models.PullResponse{batch(2)}
	_, err := e.engine.SyncOnce(ctx)
	require.NoError(t, err)
	first, err := friends.NewSQLiteRepository(e.db).List(ctx, true)
	require.NoError(t, err)

	// сервер прислал тот же батч повторно
	require.NoError(t, syncstate.NewSQLiteRepository(e.db).Set(ctx, DefaultCollection, 0))
	e.remote.batches = []*models.PullResponse{batch(2)}
	_, err = e.engine.SyncOnce(ctx)
	require.NoError(t, err)

	second, err := friends.NewSQLiteRepository(e.db).List(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(2), e.cursor(t))
}

func TestSyncOnce_EmptyIsNoOp(t *testing.T) {
	e := setup(t, Options{})
	ctx := context.Background()

	before := e.totalChanges(t)
	for i := 0; i < 3; i++ {
		res, err := e.engine.SyncOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, &Result{}, res)
	}
	assert.Equal(t, before, e.totalChanges(t), "no writes")
	assert.Empty(t, e.remote.pushes)
	assert.Len(t, e.remote.pulls, 3)

	st, err := e.engine.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Cursor)
}

func TestSyncOnce_UploadFailureIsTerminal(t *testing.T) {
	e := setup(t, Options{})
	ctx := context.Background()
	e.uploader.err = fmt.Errorf("upload: %w", common.ErrUnavailable)

	id, err := e.pipeline.Store(ctx, strings.NewReader("bytes"), models.AttachmentMeta{Filename: "a.bin"})
	require.NoError(t, err)

	res, err := e.engine.SyncOnce(ctx)
	require.NoError(t, err, "upload failures do not fail the sync")
	assert.Equal(t, 1, res.Uploads.Failed)

	got, err := e.pipeline.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, models.UploadFailed, got[0].UploadStatus)

	e.uploader.err = nil
	res, err = e.engine.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Uploads.Uploaded)
	assert.Equal(t, 1, e.uploader.calls, "failed attachment is not retried")
}

func TestSyncOnce_UploadSuccessPropagatesStatus(t *testing.T) {
	e := setup(t, Options{})
	ctx := context.Background()

	_, err := e.pipeline.Store(ctx, strings.NewReader("bytes"), models.AttachmentMeta{Filename: "a.bin"})
	require.NoError(t, err)

	res, err := e.engine.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Uploads.Uploaded)
	// create, uploading, uploaded
	assert.Equal(t, 3, res.Pushed)

	last := e.remote.pushes[0][2]
	assert.Contains(t, string(last.Payload), `"uploadStatus":"uploaded"`)
}

func TestSyncOnce_PartialAck(t *testing.T) {
	e := setup(t, Options{})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, e.friends.Create(ctx, &models.Friend{ID: id, Name: id}))
	}
	e.remote.ack = func(batch []*models.OutboxEntry) []string {
		return []string{batch[0].ChangeID, batch[2].ChangeID, "unknown-id"}
	}

	res, err := e.engine.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pushed)
	assert.Equal(t, 1, res.Unacked)
	require.Len(t, e.remote.pushes, 1, "each entry is sent once per cycle")

	left := e.outbox(t)
	require.Len(t, left, 1)
	assert.Equal(t, "b", left[0].PrimaryKey)
	assert.Equal(t, 1, left[0].Attempts)
	assert.Equal(t, "not acknowledged", left[0].LastError)
	assert.Equal(t, models.Millis(e.clock.Now().Add(DefaultRetryBase)), left[0].NextAttemptAt)

	// retry not yet due
	e.remote.ack = nil
	res, err = e.engine.SyncOnce(ctx)
	require.NoError(t, err)
	assert.True(t, res.PushDeferred)
	assert.Len(t, e.remote.pushes, 1)
	assert.Len(t, e.outbox(t), 1)

	e.clock.Advance(DefaultRetryBase)
	res, err = e.engine.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)
	assert.Empty(t, e.outbox(t))
}

func TestSyncOnce_PushBatches(t *testing.T) {
	e := setup(t, Options{PushBatchSize: 2})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, e.friends.Create(ctx, &models.Friend{ID: fmt.Sprintf("f%d", i), Name: "n"}))
	}

	res, err := e.engine.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Pushed)
	require.Len(t, e.remote.pushes, 3)
	assert.Len(t, e.remote.pushes[0], 2)
	assert.Len(t, e.remote.pushes[2], 1)

	var order []string
	for _, b := range e.remote.pushes {
		for _, entry := range b {
			order = append(order, entry.PrimaryKey)
		}
	}
	assert.Equal(t, []string{"f0", "f1", "f2", "f3", "f4"}, order)
}

func TestSyncOnce_PushFailureAbortsAndBacksOff(t *testing.T) {
	e := setup(t, Options{})
	ctx := context.Background()
	require.NoError(t, e.friends.Create(ctx, &models.Friend{ID: "a", Name: "A"}))

	e.remote.pushErr = fmt.Errorf("push: %w", common.ErrUnavailable)
	_, err := e.engine.SyncOnce(ctx)
	require.ErrorIs(t, err, common.ErrUnavailable)
	assert.Contains(t, err.Error(), "push phase")
	assert.Empty(t, e.remote.pulls, "pull is not attempted after a push failure")

	left := e.outbox(t)
	require.Len(t, left, 1)
	assert.Equal(t, 1, left[0].Attempts)

	e.clock.Advance(DefaultRetryBase)
	_, err = e.engine.SyncOnce(ctx)
	require.Error(t, err)

	left = e.outbox(t)
	require.Len(t, left, 1)
	assert.Equal(t, 2, left[0].Attempts)
	assert.Equal(t, models.Millis(e.clock.Now().Add(2*DefaultRetryBase)), left[0].NextAttemptAt)
}

func TestSyncOnce_MalformedChangeAbortsBatch(t *testing.T) {
	e := setup(t, Options{})
	ctx := context.Background()

	e.remote.batches = []*models.PullResponse{{
		Changes: []models.RemoteChange{
			upsert(models.TableFriends, "a", `{"id":"a","name":"A"}`),
			upsert(models.TableFriends, "b", `{"id":"b"`),
		},
		NewSeq: 3,
	}}

	_, err := e.engine.SyncOnce(ctx)
	require.ErrorIs(t, err, common.ErrMalformedChange)
	assert.Zero(t, e.cursor(t))

	_, err = friends.NewSQLiteRepository(e.db).Get(ctx, "a")
	require.ErrorIs(t, err, common.ErrNotFound, "no partial batch apply")
}

func TestSyncOnce_CursorRegression(t *testing.T) {
	e := setup(t, Options{})
	ctx := context.Background()
	require.NoError(t, syncstate.NewSQLiteRepository(e.db).Set(ctx, DefaultCollection, 20))

	e.remote.batches = []*models.PullResponse{{NewSeq: 5}}
	_, err := e.engine.SyncOnce(ctx)
	require.ErrorIs(t, err, common.ErrCursorRegression)
	assert.Equal(t, int64(20), e.cursor(t))
}

func TestSyncOnce_NoProgressWithHasMore(t *testing.T) {
	e := setup(t, Options{})
	e.remote.batches = []*models.PullResponse{{NewSeq: 0, HasMore: true}}

	_, err := e.engine.SyncOnce(context.Background())
	require.Error(t, err)
}

func TestSyncOnce_NonEmptyBatchWithoutProgress(t *testing.T) {
	e := setup(t, Options{})
	e.remote.batches = []*models.PullResponse{{
		Changes: []models.RemoteChange{upsert(models.TableFriends, "a", `{"id":"a","name":"A"}`)},
		NewSeq:  0,
		HasMore: true,
	}}

	_, err := e.engine.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Len(t, e.remote.pulls, 1)
	assert.Zero(t, e.cursor(t))

	_, err = friends.NewSQLiteRepository(e.db).Get(context.Background(), "a")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSyncOnce_RemoteDeleteReleasesPayload(t *testing.T) {
	e := setup(t, Options{})
	ctx := context.Background()
	e.uploader.err = common.ErrUnavailable

	id, err := e.pipeline.Store(ctx, strings.NewReader("data"), models.AttachmentMeta{Filename: "a.txt"})
	require.NoError(t, err)
	_, err = e.engine.SyncOnce(ctx)
	require.NoError(t, err)

	a, err := attachmentrepo.NewSQLiteRepository(e.db).Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.UploadFailed, a.UploadStatus)
	ok, err := e.blobs.Has(a.BlobRef)
	require.NoError(t, err)
	require.True(t, ok)

	e.remote.batches = []*models.PullResponse{{
		Changes: []models.RemoteChange{{Table: models.TableAttachments, Op: models.OpDelete, PK: id}},
		NewSeq:  1,
	}}
	res, err := e.engine.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)

	_, err = attachmentrepo.NewSQLiteRepository(e.db).Get(ctx, id)
	require.ErrorIs(t, err, common.ErrNotFound)
	ok, err = e.blobs.Has(a.BlobRef)
	require.NoError(t, err)
	assert.False(t, ok, "payload of a remotely deleted attachment is dropped")
}

func TestSyncOnce_UnknownTableIgnored(t *testing.T) {
	e := setup(t, Options{})
	e.remote.batches = []*models.PullResponse{{
		Changes: []models.RemoteChange{upsert("notes", "n1", `{"id":"n1"}`)},
		NewSeq:  1,
	}}

	res, err := e.engine.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, int64(1), e.cursor(t))
}

func TestSyncOnce_HardDeleteNotResurrected(t *testing.T) {
	e := setup(t, Options{})
	ctx := context.Background()

	require.NoError(t, e.friends.Create(ctx, &models.Friend{ID: "a", Name: "A"}))
	require.NoError(t, e.friends.Delete(ctx, "a"))

	e.remote.pushErr = common.ErrUnavailable
	_, err := e.engine.SyncOnce(ctx)
	require.Error(t, err)

	// remote keeps ignoring the delete; pull runs while it is still queued
	e.remote.pushErr = nil
	e.remote.ack = func([]*models.OutboxEntry) []string { return nil }
	e.clock.Advance(time.Hour)
	e.remote.batches = []*models.PullResponse{{
		Changes: []models.RemoteChange{upsert(models.TableFriends, "a", `{"id":"a","name":"A"}`)},
		NewSeq:  1,
	}}
	res, err := e.engine.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)

	_, err = friends.NewSQLiteRepository(e.db).Get(ctx, "a")
	require.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, int64(1), e.cursor(t))
}

func TestSyncOnce_SingleFlight(t *testing.T) {
	e := setup(t, Options{})
	e.remote.entered = make(chan struct{})
	e.remote.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := e.engine.SyncOnce(context.Background())
		done <- err
	}()

	<-e.remote.entered
	_, err := e.engine.SyncOnce(context.Background())
	require.ErrorIs(t, err, common.ErrSyncInProgress)

	close(e.remote.release)
	require.NoError(t, <-done)
}

func TestStatus(t *testing.T) {
	e := setup(t, Options{})
	ctx := context.Background()
	require.NoError(t, e.friends.Create(ctx, &models.Friend{ID: "a", Name: "A"}))

	st, err := e.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Pending)
	assert.Equal(t, DefaultCollection, st.Collection)
	require.NotNil(t, st.Head)
	assert.Equal(t, "a", st.Head.PrimaryKey)
	assert.Zero(t, st.Backlog)
}

func TestBackoff(t *testing.T) {
	e := &Engine{opts: Options{RetryBase: time.Second, RetryMax: 10 * time.Second}}
	assert.Equal(t, time.Second, e.backoff(1))
	assert.Equal(t, 2*time.Second, e.backoff(2))
	assert.Equal(t, 8*time.Second, e.backoff(4))
	assert.Equal(t, 10*time.Second, e.backoff(5))
	assert.Equal(t, 10*time.Second, e.backoff(100))
}
