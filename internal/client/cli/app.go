package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dmitrijs2005/offsync/internal/client/attachments"
	"github.com/dmitrijs2005/offsync/internal/client/blobs"
	"github.com/dmitrijs2005/offsync/internal/client/capture"
	"github.com/dmitrijs2005/offsync/internal/client/config"
	"github.com/dmitrijs2005/offsync/internal/client/remote"
	"github.com/dmitrijs2005/offsync/internal/client/services"
	"github.com/dmitrijs2005/offsync/internal/client/storage"
	"github.com/dmitrijs2005/offsync/internal/client/syncer"
	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/filex"
	"github.com/dmitrijs2005/offsync/internal/logging"
)

type Mode string

const (
	ModeUnknown Mode = "unknown"
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// App holds everything a command needs. One App serves one process.
type App struct {
	config  *config.Config
	log     logging.Logger
	db      *sql.DB
	rec     *capture.Recorder
	friends services.FriendService
	tags    services.TagService
	files   *attachments.Pipeline
	engine  *syncer.Engine
	reader  *bufio.Reader

	mu   sync.Mutex
	mode Mode
}

// NewApp opens the local store under the configured data directory and wires
// the sync stack. Nothing here needs the server to be reachable.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	if _, err := filex.EnsureDir(c.DataDir); err != nil {
		return nil, fmt.Errorf("error creating data dir: %w", err)
	}
	if _, err := filex.EnsureDir(filepath.Dir(c.DatabasePath)); err != nil {
		return nil, fmt.Errorf("error creating database dir: %w", err)
	}

	db, err := storage.Open(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	store, err := blobs.NewStore(c.BlobDir)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	rec := capture.NewRecorder(db, log)
	friendRepo := capture.NewFriends(rec)
	tagRepo := capture.NewTags(rec)
	attachmentRepo := capture.NewAttachments(rec)

	client := remote.New(c.ServerURL, c.RequestTimeout, log)
	files := attachments.NewPipeline(db, attachmentRepo, store, client, log)

	if n, err := files.ResetInterrupted(ctx); err != nil {
		_ = rec.Close()
		_ = db.Close()
		return nil, err
	} else if n > 0 {
		log.Info(ctx, "interrupted uploads reset", "count", n)
	}

	engine := syncer.NewEngine(db, rec, client, files,
		[]syncer.Applier{friendRepo, tagRepo, attachmentRepo},
		syncer.Options{
			PushBatchSize: c.PushBatchSize,
			PullLimit:     c.PullLimit,
			Collection:    c.Collection,
			RetryBase:     c.RetryBase,
			RetryMax:      c.RetryMax,
		}, log)

	mode := services.DeleteMode(c.DeleteMode)
	return &App{
		config:  c,
		log:     log,
		db:      db,
		rec:     rec,
		friends: services.NewFriendService(db, friendRepo, mode),
		tags:    services.NewTagService(db, tagRepo, mode),
		files:   files,
		engine:  engine,
		reader:  bufio.NewReader(os.Stdin),
		mode:    ModeUnknown,
	}, nil
}

// Close flushes queued outbox entries and closes the store.
func (a *App) Close(ctx context.Context) error {
	if err := a.rec.Barrier(ctx); err != nil {
		a.log.Warn(ctx, "outbox not fully persisted on exit", "error", err)
	}
	return errors.Join(a.rec.Close(), a.db.Close())
}

// SetInput replaces the reader used for interactive prompts.
func (a *App) SetInput(r io.Reader) {
	a.reader = bufio.NewReader(r)
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) setMode(ctx context.Context, mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != mode {
		a.mode = mode
		a.log.Info(ctx, "switched mode", "mode", mode)
	}
}

// Sync runs one cycle and tracks reachability from its outcome.
func (a *App) Sync(ctx context.Context) (*syncer.Result, error) {
	res, err := a.engine.SyncOnce(ctx)
	switch {
	case err == nil:
		a.setMode(ctx, ModeOnline)
	case errors.Is(err, common.ErrUnavailable):
		a.setMode(ctx, ModeOffline)
	}
	return res, err
}

// StartSyncLoop calls Sync every interval until ctx is done. The engine has
// no timers of its own; this is the external trigger.
func (a *App) StartSyncLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := a.Sync(ctx)
			if err != nil {
				if !errors.Is(err, common.ErrSyncInProgress) && ctx.Err() == nil {
					a.log.Warn(ctx, "background sync failed", "error", err)
				}
				continue
			}
			a.log.Debug(ctx, "background sync done", "pushed", res.Pushed, "applied", res.Applied, "cursor", res.Cursor)

		case <-ctx.Done():
			return
		}
	}
}
