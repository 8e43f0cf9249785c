package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/offsync/internal/client/blobs"
	"github.com/dmitrijs2005/offsync/internal/client/capture"
	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/attachments"
	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/dbx"
	"github.com/dmitrijs2005/offsync/internal/logging"
	"github.com/google/uuid"
)

const defaultMimeType = "application/octet-stream"

// Uploader transfers one payload to the remote store and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, req models.UploadRequest) (string, error)
}

// DrainResult counts what one DrainPending call did.
type DrainResult struct {
	Uploaded int
	Failed   int
	Skipped  int
}

type Pipeline struct {
	repo     *capture.Attachments
	db       dbx.DBTX
	blobs    *blobs.Store
	uploader Uploader
	log      logging.Logger
	newID    func() string
}

func NewPipeline(db dbx.DBTX, repo *capture.Attachments, store *blobs.Store, uploader Uploader, log logging.Logger) *Pipeline {
	return &Pipeline{
		repo:     repo,
		db:       db,
		blobs:    store,
		uploader: uploader,
		log:      log.With("component", "attachments"),
		newID:    uuid.NewString,
	}
}

func (p *Pipeline) store() attachments.Repository {
	return attachments.NewSQLiteRepository(p.db)
}

// Store saves the payload locally and records a pending attachment. It never
// touches the network.
func (p *Pipeline) Store(ctx context.Context, r io.Reader, meta models.AttachmentMeta) (string, error) {
	meta.Filename = strings.TrimSpace(meta.Filename)
	if meta.Filename == "" {
		return "", fmt.Errorf("%w: filename is required", common.ErrValidation)
	}

	ref, size, err := p.blobs.Put(r)
	if err != nil {
		return "", err
	}

	a := &models.Attachment{
		ID:           p.newID(),
		Filename:     meta.Filename,
		MimeType:     mimeType(meta),
		Size:         size,
		UploadStatus: models.UploadPending,
		FriendID:     meta.FriendID,
		RecordTags:   meta.RecordTags,
		BlobRef:      ref,
	}
	if err := p.repo.Create(ctx, a); err != nil {
		p.release(ctx, ref)
		return "", err
	}

	p.log.Info(ctx, "attachment stored", "id", a.ID, "filename", a.Filename, "size", size)
	return a.ID, nil
}

func mimeType(meta models.AttachmentMeta) string {
	if meta.MimeType != "" {
		return meta.MimeType
	}
	if t := mime.TypeByExtension(filepath.Ext(meta.Filename)); t != "" {
		return t
	}
	return defaultMimeType
}

// DrainPending uploads every pending attachment that still has a local
// payload, one at a time. Upload failures are recorded on the attachment;
// only local store failures are returned.
func (p *Pipeline) DrainPending(ctx context.Context) (*DrainResult, error) {
	list, err := p.store().GetAllPendingUpload(ctx)
	if err != nil {
		return nil, err
	}

	res := &DrainResult{}
	for _, a := range list {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ok, err := p.hasPayload(a)
		if err != nil {
			p.log.Warn(ctx, "cannot check local payload, skipping", "id", a.ID, "error", err)
			res.Skipped++
			continue
		}
		if !ok {
			p.log.Warn(ctx, "pending attachment has no local payload, skipping", "id", a.ID)
			res.Skipped++
			continue
		}

		uploaded, err := p.upload(ctx, a)
		if err != nil {
			return res, err
		}
		if uploaded {
			res.Uploaded++
		} else {
			res.Failed++
		}
	}
	return res, nil
}

func (p *Pipeline) hasPayload(a *models.Attachment) (bool, error) {
	if a.BlobRef == "" {
		return false, nil
	}
	return p.blobs.Has(a.BlobRef)
}

func (p *Pipeline) setStatus(ctx context.Context, id string, status models.UploadStatus) error {
	_, err := p.repo.Update(ctx, id, func(a *models.Attachment) error {
		a.UploadStatus = status
		return nil
	})
	return err
}

// upload moves one attachment through uploading to uploaded or failed. It
// reports whether the transfer succeeded.
func (p *Pipeline) upload(ctx context.Context, a *models.Attachment) (bool, error) {
	if err := p.setStatus(ctx, a.ID, models.UploadUploading); err != nil {
		return false, err
	}

	url, err := p.transfer(ctx, a)
	if err != nil {
		if ctx.Err() != nil {
			// interrupted, not failed: hand it back to the next cycle
			if rerr := p.setStatus(context.WithoutCancel(ctx), a.ID, models.UploadPending); rerr != nil {
				return false, errors.Join(ctx.Err(), rerr)
			}
			return false, ctx.Err()
		}
		p.log.Warn(ctx, "attachment upload failed", "id", a.ID, "error", err)
		return false, p.setStatus(ctx, a.ID, models.UploadFailed)
	}

	ref := a.BlobRef
	_, err = p.repo.Update(ctx, a.ID, func(cur *models.Attachment) error {
		cur.URL = url
		cur.UploadStatus = models.UploadUploaded
		cur.BlobRef = ""
		return nil
	})
	if err != nil {
		return false, err
	}

	p.release(ctx, ref)
	p.log.Info(ctx, "attachment uploaded", "id", a.ID, "url", url)
	return true, nil
}

func (p *Pipeline) transfer(ctx context.Context, a *models.Attachment) (string, error) {
	f, err := p.blobs.Open(a.BlobRef)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return p.uploader.Upload(ctx, models.UploadRequest{
		ID:       a.ID,
		Filename: a.Filename,
		MimeType: a.MimeType,
		FriendID: a.FriendID,
		Body:     f,
	})
}

// ReleasePayload deletes the payload ref unless an attachment still refers
// to it. The sync engine calls it after a remote delete removed a row that
// kept its payload. Failures are logged.
func (p *Pipeline) ReleasePayload(ctx context.Context, ref string) {
	p.release(ctx, ref)
}

// release deletes the payload once no attachment refers to it anymore.
func (p *Pipeline) release(ctx context.Context, ref string) {
	n, err := p.store().CountByBlobRef(ctx, ref)
	if err != nil {
		p.log.Warn(ctx, "cannot count payload references", "ref", ref, "error", err)
		return
	}
	if n > 0 {
		return
	}
	if err := p.blobs.Delete(ref); err != nil {
		p.log.Warn(ctx, "cannot delete payload", "ref", ref, "error", err)
	}
}

// ResetInterrupted returns attachments left in "uploading" by a process that
// stopped mid-transfer to "pending". Call it before the first sync.
func (p *Pipeline) ResetInterrupted(ctx context.Context) (int, error) {
	list, err := p.store().ListByStatus(ctx, models.UploadUploading)
	if err != nil {
		return 0, err
	}
	for _, a := range list {
		if err := p.setStatus(ctx, a.ID, models.UploadPending); err != nil {
			return 0, err
		}
	}
	return len(list), nil
}

// FileURL returns the remote URL of an uploaded attachment. ok is false
// while the file has not reached the remote store.
func (p *Pipeline) FileURL(ctx context.Context, id string) (url string, ok bool, err error) {
	a, err := p.store().Get(ctx, id)
	if err != nil {
		return "", false, err
	}
	if a.UploadStatus != models.UploadUploaded || a.URL == "" {
		return "", false, nil
	}
	return a.URL, true, nil
}

// OpenLocal opens the local payload of an attachment that is not uploaded
// yet. It fails with common.ErrNotFound when no payload is kept locally.
func (p *Pipeline) OpenLocal(ctx context.Context, id string) (io.ReadCloser, *models.Attachment, error) {
	a, err := p.store().Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if a.BlobRef == "" {
		return nil, nil, fmt.Errorf("attachment %s has no local payload: %w", id, common.ErrNotFound)
	}
	f, err := p.blobs.Open(a.BlobRef)
	if err != nil {
		return nil, nil, err
	}
	return f, a, nil
}

// List returns live attachments, optionally only those of one friend.
func (p *Pipeline) List(ctx context.Context, friendID string) ([]*models.Attachment, error) {
	if friendID != "" {
		return p.store().ListByFriend(ctx, friendID)
	}
	return p.store().List(ctx, false)
}

// Delete removes the attachment and its local payload.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	a, err := p.store().Get(ctx, id)
	if err != nil {
		return err
	}
	if err := p.repo.Delete(ctx, id); err != nil {
		return err
	}
	if a.BlobRef != "" {
		p.release(ctx, a.BlobRef)
	}
	return nil
}
