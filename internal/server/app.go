// Package server wires the reference sync server: configuration, the change
// log and blob store backends, the HTTP API and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/offsync/internal/logging"
	"github.com/dmitrijs2005/offsync/internal/server/blobstore"
	"github.com/dmitrijs2005/offsync/internal/server/changelog"
	"github.com/dmitrijs2005/offsync/internal/server/config"
	"github.com/dmitrijs2005/offsync/internal/server/httpapi"
	"github.com/dmitrijs2005/offsync/internal/server/services"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	changes changelog.Store
	handler http.Handler
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(os.Stdout, c.LogLevel, c.LogFormat)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	changes, err := openChangeLog(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("change log init error: %w", err)
	}

	blobs, err := openBlobStore(ctx, c)
	if err != nil {
		_ = changes.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	publicURL, err := PublicURL(c)
	if err != nil {
		_ = changes.Close()
		return nil, err
	}

	svc := services.NewSyncService(logger, changes, blobs, publicURL)
	handler := httpapi.NewRouter(httpapi.NewHandler(svc, logger, c.MaxUploadSize))

	logger.Info(ctx, "server configured",
		"change_log", c.ChangeLog, "blob_store", c.BlobStore, "public_url", publicURL)

	return &App{config: c, logger: logger, changes: changes, handler: handler}, nil
}

func openChangeLog(ctx context.Context, c *config.Config) (changelog.Store, error) {
	switch c.ChangeLog {
	case config.ChangeLogMemory:
		return changelog.NewMemoryStore(), nil
	case config.ChangeLogPostgres:
		return changelog.OpenPostgres(ctx, c.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unknown change log backend %q", c.ChangeLog)
	}
}

func openBlobStore(ctx context.Context, c *config.Config) (blobstore.Store, error) {
	switch c.BlobStore {
	case config.BlobStoreMemory:
		return blobstore.NewMemoryStore(), nil
	case config.BlobStoreS3:
		return blobstore.NewS3Store(ctx, blobstore.S3Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		})
	default:
		return nil, fmt.Errorf("unknown blob store backend %q", c.BlobStore)
	}
}

// PublicURL returns the configured public URL or derives one from the
// listen address.
func PublicURL(c *config.Config) (string, error) {
	if c.PublicURL != "" {
		return c.PublicURL, nil
	}
	host, port, err := net.SplitHostPort(c.HTTPAddr)
	if err != nil {
		return "", fmt.Errorf("invalid http address %q: %w", c.HTTPAddr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.logger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return <-errCh
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	ln, err := net.Listen("tcp", app.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen error: %w", err)
	}
	app.logger.Info(ctx, "Starting server...", "addr", ln.Addr().String())

	var (
		wg     sync.WaitGroup
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = app.serve(ctx, ln)
	}()
	wg.Wait()

	return errors.Join(runErr, app.changes.Close())
}
