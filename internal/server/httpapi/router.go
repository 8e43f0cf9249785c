// Package httpapi exposes the sync service over HTTP/JSON:
//
//	GET  /healthz
//	POST /sync/push    # append outbox entries, answer with acked ids
//	POST /sync/pull    # changes after a cursor
//	POST /sync/upload  # multipart attachment payload
//	GET  /files/*      # stored payloads
package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/logging"
	"github.com/dmitrijs2005/offsync/internal/server/blobstore"
	"github.com/dmitrijs2005/offsync/internal/server/models"
	"github.com/dmitrijs2005/offsync/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SyncService is what the handlers need from services.SyncService.
type SyncService interface {
	Push(ctx context.Context, req *models.PushRequest) (*models.PushResponse, error)
	Pull(ctx context.Context, req *models.PullRequest) (*models.PullResponse, error)
	Upload(ctx context.Context, in services.UploadInput) (*models.UploadResponse, error)
	Open(ctx context.Context, key string) (*blobstore.Object, error)
	DirectURL(ctx context.Context, key string) (string, bool, error)
}

type Handler struct {
	svc           SyncService
	log           logging.Logger
	maxUploadSize int64
}

func NewHandler(svc SyncService, log logging.Logger, maxUploadSize int64) *Handler {
	return &Handler{svc: svc, log: log.With("component", "http"), maxUploadSize: maxUploadSize}
}

// NewRouter wires the handlers and the middleware chain.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Post(common.PushPath, h.push)
	r.Post(common.PullPath, h.pull)
	r.Post(common.UploadPath, h.upload)
	r.Get(common.FilesPath+"*", h.file)

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
