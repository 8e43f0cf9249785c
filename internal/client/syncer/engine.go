package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/offsync/internal/client/attachments"
	"github.com/dmitrijs2005/offsync/internal/client/models"
	attachmentrepo "github.com/dmitrijs2005/offsync/internal/client/repositories/attachments"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/syncstate"
	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/dbx"
	"github.com/dmitrijs2005/offsync/internal/logging"
)

const (
	DefaultPushBatchSize = 100
	DefaultPullLimit     = 500
	DefaultCollection    = "default"
	DefaultRetryBase     = 2 * time.Second
	DefaultRetryMax      = 5 * time.Minute
)

// Remote is the remote authority's change API.
type Remote interface {
	Push(ctx context.Context, entries []*models.OutboxEntry) ([]string, error)
	Pull(ctx context.Context, since int64, limit int) (*models.PullResponse, error)
}

// Uploads drains pending attachment transfers and owns the local payloads.
type Uploads interface {
	DrainPending(ctx context.Context) (*attachments.DrainResult, error)
	// ReleasePayload drops the local payload ref once no attachment row
	// refers to it.
	ReleasePayload(ctx context.Context, ref string)
}

// Capture is the local write queue the engine coordinates with.
type Capture interface {
	Barrier(ctx context.Context) error
	ApplyRemote(ctx context.Context, fn dbx.TxFunc) error
}

// Applier mirrors remote changes of one table. It must be called with the
// ctx handed out by Capture.ApplyRemote.
type Applier interface {
	Table() models.Table
	ApplyRemote(ctx context.Context, ch models.RemoteChange) (bool, error)
}

type Options struct {
	PushBatchSize int
	PullLimit     int
	Collection    string
	RetryBase     time.Duration
	RetryMax      time.Duration
	Now           func() time.Time
}

func (o *Options) setDefaults() {
	if o.PushBatchSize <= 0 {
		o.PushBatchSize = DefaultPushBatchSize
	}
	if o.PullLimit <= 0 {
		o.PullLimit = DefaultPullLimit
	}
	if o.Collection == "" {
		o.Collection = DefaultCollection
	}
	if o.RetryBase <= 0 {
		o.RetryBase = DefaultRetryBase
	}
	if o.RetryMax <= 0 {
		o.RetryMax = DefaultRetryMax
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type Engine struct {
	db       *sql.DB
	capture  Capture
	remote   Remote
	uploads  Uploads
	appliers map[models.Table]Applier
	opts     Options
	log      logging.Logger

	running sync.Mutex
}

func NewEngine(db *sql.DB, capture Capture, remote Remote, uploads Uploads, appliers []Applier, opts Options, log logging.Logger) *Engine {
	opts.setDefaults()
	m := make(map[models.Table]Applier, len(appliers))
	for _, a := range appliers {
		m[a.Table()] = a
	}
	return &Engine{
		db:       db,
		capture:  capture,
		remote:   remote,
		uploads:  uploads,
		appliers: m,
		opts:     opts,
		log:      log.With("component", "syncer"),
	}
}

// Result summarizes one SyncOnce call.
type Result struct {
	Uploads      attachments.DrainResult
	Pushed       int
	Unacked      int
	PushDeferred bool
	Applied      int
	Skipped      int
	Batches      int
	Cursor       int64
}

// SyncOnce runs upload, push and pull. At most one call is in flight; a
// concurrent call fails with common.ErrSyncInProgress. On error the returned
// Result describes the progress made before the failing phase.
func (e *Engine) SyncOnce(ctx context.Context) (*Result, error) {
	if !e.running.TryLock() {
		return nil, common.ErrSyncInProgress
	}
	defer e.running.Unlock()

	started := time.Now()
	res := &Result{}

	if e.uploads != nil {
		drained, err := e.uploads.DrainPending(ctx)
		if drained != nil {
			res.Uploads = *drained
		}
		if err != nil {
			return res, fmt.Errorf("upload phase: %w", err)
		}
	}

	if err := e.push(ctx, res); err != nil {
		return res, fmt.Errorf("push phase: %w", err)
	}

	if err := e.pull(ctx, res); err != nil {
		return res, fmt.Errorf("pull phase: %w", err)
	}

	e.log.Info(ctx, "sync finished",
		"uploaded", res.Uploads.Uploaded, "upload_failed", res.Uploads.Failed,
		"pushed", res.Pushed, "unacked", res.Unacked, "deferred", res.PushDeferred,
		"applied", res.Applied, "skipped", res.Skipped, "cursor", res.Cursor,
		"took", time.Since(started))
	return res, nil
}

// backoff returns the delay before the next attempt of an entry that has
// failed attempts times.
func (e *Engine) backoff(attempts int) time.Duration {
	d := e.opts.RetryBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= e.opts.RetryMax {
			return e.opts.RetryMax
		}
	}
	if d > e.opts.RetryMax {
		return e.opts.RetryMax
	}
	return d
}

func (e *Engine) push(ctx context.Context, res *Result) error {
	if err := e.capture.Barrier(ctx); err != nil {
		return err
	}

	repo := outbox.NewSQLiteRepository(e.db)

	head, err := repo.Head(ctx)
	if err != nil {
		return err
	}
	if head == nil {
		return nil
	}
	if now := models.Millis(e.opts.Now()); head.NextAttemptAt > now {
		res.PushDeferred = true
		e.log.Info(ctx, "push deferred", "change_id", head.ChangeID, "attempts", head.Attempts,
			"retry_in", time.Duration(head.NextAttemptAt-now)*time.Millisecond)
		return nil
	}

	var lastSent int64
	for {
		batch, err := repo.ListAfter(ctx, lastSent, e.opts.PushBatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		lastSent = maxSeq(batch)

		acked, err := e.remote.Push(ctx, batch)
		if err != nil {
			if ctx.Err() == nil {
				if ferr := e.recordFailure(ctx, batch, err.Error()); ferr != nil {
					e.log.Error(ctx, "cannot record push failure", "error", ferr)
				}
			}
			return err
		}

		ackedSet := make(map[string]struct{}, len(acked))
		for _, id := range acked {
			ackedSet[id] = struct{}{}
		}
		var done []string
		var unacked []*models.OutboxEntry
		for _, entry := range batch {
			if _, ok := ackedSet[entry.ChangeID]; ok {
				done = append(done, entry.ChangeID)
			} else {
				unacked = append(unacked, entry)
			}
		}

		n, err := repo.DeleteByChangeIDs(ctx, done)
		if err != nil {
			return err
		}
		res.Pushed += int(n)

		if len(unacked) > 0 {
			res.Unacked += len(unacked)
			if err := e.recordFailure(ctx, unacked, "not acknowledged"); err != nil {
				return err
			}
		}

		e.log.Debug(ctx, "push batch", "sent", len(batch), "acked", len(done), "unacked", len(unacked))
	}
}

func maxSeq(batch []*models.OutboxEntry) int64 {
	var m int64
	for _, e := range batch {
		if e.Seq > m {
			m = e.Seq
		}
	}
	return m
}

// recordFailure bumps attempts on every entry of batch and schedules its
// next attempt from its own attempt count.
func (e *Engine) recordFailure(ctx context.Context, batch []*models.OutboxEntry, reason string) error {
	now := e.opts.Now()
	byAttempts := make(map[int][]string)
	for _, entry := range batch {
		byAttempts[entry.Attempts+1] = append(byAttempts[entry.Attempts+1], entry.ChangeID)
	}

	repo := outbox.NewSQLiteRepository(e.db)
	for attempts, ids := range byAttempts {
		next := models.Millis(now.Add(e.backoff(attempts)))
		if err := repo.RecordFailure(ctx, ids, reason, next); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) pull(ctx context.Context, res *Result) error {
	cursors := syncstate.NewSQLiteRepository(e.db)
	key := e.opts.Collection

	for {
		since, err := cursors.Get(ctx, key)
		if err != nil {
			return err
		}
		res.Cursor = since

		batch, err := e.remote.Pull(ctx, since, e.opts.PullLimit)
		if err != nil {
			return err
		}
		if batch.NewSeq < since {
			return fmt.Errorf("%w: %d < %d", common.ErrCursorRegression, batch.NewSeq, since)
		}

		if batch.HasMore && batch.NewSeq == since {
			return fmt.Errorf("remote reported more changes after %d without progress", since)
		}
		if len(batch.Changes) == 0 && batch.NewSeq == since {
			return nil
		}

		applied, skipped := 0, 0
		var orphaned []string
		err = e.capture.ApplyRemote(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			applied, skipped, orphaned = 0, 0, nil
			for i, ch := range batch.Changes {
				ref, err := payloadRef(ctx, tx, ch)
				if err != nil {
					return fmt.Errorf("change %d (%s/%s): %w", i, ch.Table, ch.PK, err)
				}
				ok, err := e.apply(ctx, ch)
				if err != nil {
					return fmt.Errorf("change %d (%s/%s): %w", i, ch.Table, ch.PK, err)
				}
				if ok {
					applied++
					if ref != "" {
						orphaned = append(orphaned, ref)
					}
				} else {
					skipped++
				}
			}
			return syncstate.NewSQLiteRepository(tx).Set(ctx, key, batch.NewSeq)
		})
		if err != nil {
			return err
		}

		if e.uploads != nil {
			for _, ref := range orphaned {
				e.uploads.ReleasePayload(ctx, ref)
			}
		}

		res.Applied += applied
		res.Skipped += skipped
		res.Batches++
		res.Cursor = batch.NewSeq
		e.log.Debug(ctx, "pull batch applied", "changes", len(batch.Changes),
			"applied", applied, "skipped", skipped, "cursor", batch.NewSeq)

		if !batch.HasMore {
			return nil
		}
	}
}

func (e *Engine) apply(ctx context.Context, ch models.RemoteChange) (bool, error) {
	a, ok := e.appliers[ch.Table]
	if !ok {
		e.log.Warn(ctx, "ignoring change for unknown table", "table", ch.Table, "pk", ch.PK)
		return false, nil
	}
	applied, err := a.ApplyRemote(ctx, ch)
	if err != nil {
		return false, err
	}
	if !applied {
		e.log.Debug(ctx, "remote change shadowed by pending local write", "table", ch.Table, "pk", ch.PK)
	}
	return applied, nil
}

// payloadRef returns the local payload of the attachment a remote delete is
// about to remove, or "" for any other change.
func payloadRef(ctx context.Context, tx dbx.DBTX, ch models.RemoteChange) (string, error) {
	if ch.Table != models.TableAttachments || ch.Op != models.OpDelete {
		return "", nil
	}
	a, err := attachmentrepo.NewSQLiteRepository(tx).Get(ctx, ch.PK)
	if errors.Is(err, common.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return a.BlobRef, nil
}

// Status describes the local sync state.
type Status struct {
	Pending    int64
	Backlog    int
	Cursor     int64
	Collection string
	Head       *models.OutboxEntry
}

type backlogReporter interface {
	Backlog(ctx context.Context) (int, error)
}

func (e *Engine) Status(ctx context.Context) (*Status, error) {
	repo := outbox.NewSQLiteRepository(e.db)
	pending, err := repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	head, err := repo.Head(ctx)
	if err != nil {
		return nil, err
	}
	cursor, err := syncstate.NewSQLiteRepository(e.db).Get(ctx, e.opts.Collection)
	if err != nil {
		return nil, err
	}

	st := &Status{Pending: pending, Cursor: cursor, Collection: e.opts.Collection, Head: head}
	if br, ok := e.capture.(backlogReporter); ok {
		if st.Backlog, err = br.Backlog(ctx); err != nil {
			return nil, err
		}
	}
	return st, nil
}
