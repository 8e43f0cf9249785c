package capture

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/dbx"
	"github.com/dmitrijs2005/offsync/internal/logging"
	"github.com/google/uuid"
)

type Option func(*Recorder)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithIDGenerator overrides the change id generator.
func WithIDGenerator(gen func() string) Option {
	return func(r *Recorder) { r.newID = gen }
}

type task struct {
	ctx    context.Context
	fn     func(ctx context.Context) error
	result chan error
}

// writeFunc performs the primary mutation inside tx and returns the outbox
// entry describing it. A nil entry means nothing was captured.
type writeFunc func(ctx context.Context, tx dbx.DBTX, now int64) (*models.OutboxEntry, error)

// Recorder serializes local writes and pull-apply transactions.
type Recorder struct {
	db    *sql.DB
	log   logging.Logger
	now   func() time.Time
	newID func() string

	tasks     chan task
	done      chan struct{}
	closeOnce sync.Once

	// owned by the worker goroutine
	lastTS  int64
	loaded  bool
	backlog []*models.OutboxEntry
}

func NewRecorder(db *sql.DB, log logging.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		db:    db,
		log:   log.With("component", "capture"),
		now:   time.Now,
		newID: uuid.NewString,
		tasks: make(chan task),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	go r.run()
	return r
}

// Close makes a last attempt to persist the backlog and stops the worker.
// Tasks submitted afterwards fail with common.ErrClosed. When entries could
// not be written Close reports common.ErrCaptureBacklog; they are lost.
func (r *Recorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.submit(context.Background(), func(ctx context.Context) error {
			if ferr := r.flush(ctx); ferr != nil {
				return fmt.Errorf("%w: %d entries dropped on close: %v", common.ErrCaptureBacklog, len(r.backlog), ferr)
			}
			return nil
		})
		close(r.done)
	})
	return err
}

func (r *Recorder) run() {
	for {
		select {
		case t := <-r.tasks:
			t.result <- r.exec(t)
		case <-r.done:
			return
		}
	}
}

func (r *Recorder) exec(t task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("capture task panicked: %v", p)
		}
	}()
	return t.fn(context.WithValue(t.ctx, workerKey{}, true))
}

// submit runs fn on the worker and waits for its result. Calls made from the
// worker itself run inline.
func (r *Recorder) submit(ctx context.Context, fn func(ctx context.Context) error) error {
	if onWorker(ctx) {
		return fn(ctx)
	}

	t := task{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case r.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return common.ErrClosed
	}
	return <-t.result
}

// tick returns the capture timestamp: the wall clock, but never older than
// the last one handed out.
func (r *Recorder) tick(ctx context.Context) (int64, error) {
	if !r.loaded {
		last, err := outbox.NewSQLiteRepository(r.db).MaxTS(ctx)
		if err != nil {
			return 0, err
		}
		r.lastTS, r.loaded = last, true
	}
	now := models.Millis(r.now())
	if now < r.lastTS {
		now = r.lastTS
	}
	r.lastTS = now
	return now, nil
}

// capture runs one local mutation as a task.
func (r *Recorder) capture(ctx context.Context, table models.Table, write writeFunc) error {
	return r.submit(ctx, func(ctx context.Context) error {
		if err := r.flush(ctx); err != nil {
			r.log.Warn(ctx, "outbox backlog still pending", "entries", len(r.backlog), "error", err)
		}

		now, err := r.tick(ctx)
		if err != nil {
			return err
		}

		var entry *models.OutboxEntry
		err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			var err error
			entry, err = write(ctx, tx, now)
			return err
		})
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}

		entry.ChangeID = r.newID()
		entry.Table = table
		entry.TS = now
		r.backlog = append(r.backlog, entry)

		if err := r.flush(ctx); err != nil {
			r.log.Error(ctx, "outbox append deferred",
				"change_id", entry.ChangeID, "table", table, "pk", entry.PrimaryKey, "error", err)
		}
		return nil
	})
}

// flush appends the in-memory backlog to the outbox in one transaction.
func (r *Recorder) flush(ctx context.Context) error {
	if len(r.backlog) == 0 {
		return nil
	}

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := outbox.NewSQLiteRepository(tx)
		for _, e := range r.backlog {
			if err := repo.Append(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for _, e := range r.backlog {
			e.Seq = 0
		}
		return err
	}

	for _, e := range r.backlog {
		r.log.Debug(ctx, "outbox entry queued",
			"change_id", e.ChangeID, "table", e.Table, "pk", e.PrimaryKey, "op", e.Op, "seq", e.Seq)
	}
	r.backlog = nil
	return nil
}

// Barrier waits until every captured mutation has its outbox entry
// persisted. It fails with common.ErrCaptureBacklog when the backlog cannot
// be written.
func (r *Recorder) Barrier(ctx context.Context) error {
	return r.submit(ctx, func(ctx context.Context) error {
		if err := r.flush(ctx); err != nil {
			return fmt.Errorf("%w: %d entries: %v", common.ErrCaptureBacklog, len(r.backlog), err)
		}
		return nil
	})
}

// Backlog reports how many captured entries are still held in memory.
func (r *Recorder) Backlog(ctx context.Context) (int, error) {
	var n int
	err := r.submit(ctx, func(ctx context.Context) error {
		n = len(r.backlog)
		return nil
	})
	return n, err
}

// ApplyRemote runs fn in one transaction on the worker with the apply scope
// set. Entity writes made through a capture Repository with the ctx passed
// to fn join that transaction and are not captured.
func (r *Recorder) ApplyRemote(ctx context.Context, fn dbx.TxFunc) error {
	if _, ok := Applying(ctx); ok {
		return fmt.Errorf("nested apply scope")
	}
	return r.submit(ctx, func(ctx context.Context) error {
		return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return fn(WithApply(ctx, tx), tx)
		})
	})
}
