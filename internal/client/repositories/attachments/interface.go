package attachments

import (
	"context"

	"github.com/dmitrijs2005/offsync/internal/client/models"
)

// Repository describes storage and workflow queries for Attachment records.
type Repository interface {
	// Get returns the attachment or common.ErrNotFound.
	Get(ctx context.Context, id string) (*models.Attachment, error)

	// Insert adds a new row; a duplicate id yields common.ErrAlreadyExists.
	Insert(ctx context.Context, a *models.Attachment) error

	// Put writes every column including the local blob reference.
	Put(ctx context.Context, a *models.Attachment) error

	// Replace writes the synced columns and keeps the local blob reference.
	Replace(ctx context.Context, a *models.Attachment) error

	// Delete removes the row; missing rows are ignored.
	Delete(ctx context.Context, id string) error

	// List returns attachments ordered by update time.
	List(ctx context.Context, includeDeleted bool) ([]*models.Attachment, error)

	// ListByFriend returns live attachments linked to a friend.
	ListByFriend(ctx context.Context, friendID string) ([]*models.Attachment, error)

	// GetAllPendingUpload returns live attachments with UploadStatus="pending",
	// oldest first.
	GetAllPendingUpload(ctx context.Context) ([]*models.Attachment, error)

	// ListByStatus returns live attachments in the given upload state,
	// oldest first.
	ListByStatus(ctx context.Context, status models.UploadStatus) ([]*models.Attachment, error)

	// CountByBlobRef counts rows still referencing a local payload.
	CountByBlobRef(ctx context.Context, ref string) (int, error)
}
