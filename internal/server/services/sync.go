// Package services holds the server-side sync operations.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/logging"
	"github.com/dmitrijs2005/offsync/internal/server/blobstore"
	"github.com/dmitrijs2005/offsync/internal/server/changelog"
	"github.com/dmitrijs2005/offsync/internal/server/models"
)

const (
	DefaultPullLimit = 500
	MaxPullLimit     = 1000

	filesPrefix = "attachments/"
	presignTTL  = 15 * time.Minute
)

var fileIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// UploadInput is one multipart upload after the HTTP layer parsed it.
type UploadInput struct {
	ID       string
	Filename string
	MimeType string
	FriendID string
	Body     io.Reader
	Size     int64
}

// SyncService implements the push, pull and upload operations of the
// remote authority.
type SyncService struct {
	log       logging.Logger
	changes   changelog.Store
	blobs     blobstore.Store
	publicURL string
	now       func() time.Time
}

func NewSyncService(log logging.Logger, changes changelog.Store, blobs blobstore.Store, publicURL string) *SyncService {
	return &SyncService{
		log:       log.With("component", "sync"),
		changes:   changes,
		blobs:     blobs,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}
}

// Push appends every valid entry to the change log and acknowledges exactly
// those. Invalid entries are skipped and stay unacknowledged; a change id
// seen before is acknowledged again without being stored twice.
func (s *SyncService) Push(ctx context.Context, req *models.PushRequest) (*models.PushResponse, error) {
	accepted := make([]*models.Change, 0, len(req.Changes))
	for i := range req.Changes {
		pc := &req.Changes[i]
		if err := pc.Validate(); err != nil {
			s.log.Warn(ctx, "rejected change", "change_id", pc.ChangeID, "table", pc.Table, "error", err)
			continue
		}
		accepted = append(accepted, pc.Change())
	}

	if err := s.changes.Append(ctx, accepted); err != nil {
		return nil, fmt.Errorf("failed to append changes: %w", err)
	}

	acked := make([]string, 0, len(accepted))
	for _, c := range accepted {
		acked = append(acked, c.ChangeID)
	}

	s.log.Debug(ctx, "push accepted", "received", len(req.Changes), "acked", len(acked))
	return &models.PushResponse{AckedChangeIDs: acked}, nil
}

// Pull returns changes sequenced after SinceSeq. NewSeq is the seq of the
// last returned change, or SinceSeq when there is nothing new.
func (s *SyncService) Pull(ctx context.Context, req *models.PullRequest) (*models.PullResponse, error) {
	if req.SinceSeq < 0 {
		return nil, fmt.Errorf("sinceSeq must not be negative: %w", common.ErrValidation)
	}
	limit := req.Limit
	switch {
	case limit <= 0:
		limit = DefaultPullLimit
	case limit > MaxPullLimit:
		limit = MaxPullLimit
	}

	changes, hasMore, err := s.changes.Since(ctx, req.SinceSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read changes: %w", err)
	}

	resp := &models.PullResponse{
		Changes: make([]models.RemoteChange, 0, len(changes)),
		NewSeq:  req.SinceSeq,
		HasMore: hasMore,
	}
	for _, c := range changes {
		resp.Changes = append(resp.Changes, models.RemoteChange{
			Table: c.Table,
			Op:    c.Op,
			PK:    c.PK,
			Data:  c.Data,
		})
		resp.NewSeq = c.Seq
	}
	return resp, nil
}

// StorageKey places a payload under attachments/YYYY/MM/DD/<id>.
func StorageKey(id string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%04d/%02d/%02d/%s", filesPrefix, t.Year(), t.Month(), t.Day(), id)
}

// Upload stores the payload and returns the URL it is served from.
func (s *SyncService) Upload(ctx context.Context, in UploadInput) (*models.UploadResponse, error) {
	if !validFileID(in.ID) {
		return nil, fmt.Errorf("invalid attachment id %q: %w", in.ID, common.ErrValidation)
	}
	if in.Body == nil {
		return nil, fmt.Errorf("file is required: %w", common.ErrValidation)
	}

	key := StorageKey(in.ID, s.now())
	if err := s.blobs.Put(ctx, key, in.Body, in.Size, in.MimeType); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "attachment stored", "id", in.ID, "key", key, "size", in.Size, "friend_id", in.FriendID)
	return &models.UploadResponse{URL: s.fileURL(key)}, nil
}

func (s *SyncService) fileURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.publicURL + common.FilesPath + strings.Join(parts, "/")
}

// Open returns a stored payload by its storage key.
func (s *SyncService) Open(ctx context.Context, key string) (*blobstore.Object, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return s.blobs.Get(ctx, key)
}

// DirectURL returns a presigned download link when the blob store can make
// one. ok is false otherwise and the caller streams the object itself.
func (s *SyncService) DirectURL(ctx context.Context, key string) (string, bool, error) {
	p, ok := s.blobs.(blobstore.Presigner)
	if !ok {
		return "", false, nil
	}
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	link, err := p.PresignGet(ctx, key, presignTTL)
	if err != nil {
		return "", false, err
	}
	return link, true, nil
}

func checkKey(key string) error {
	if !strings.HasPrefix(key, filesPrefix) {
		return common.ErrNotFound
	}
	for _, part := range strings.Split(strings.TrimPrefix(key, filesPrefix), "/") {
		if part == "" || part == "." || part == ".." {
			return common.ErrNotFound
		}
	}
	return nil
}

func validFileID(id string) bool {
	return id != "." && id != ".." && fileIDPattern.MatchString(id)
}

// IsClientError reports whether err is caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, common.ErrValidation) || errors.Is(err, common.ErrMalformedChange)
}
