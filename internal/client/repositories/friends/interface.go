package friends

import (
	"context"

	"github.com/dmitrijs2005/offsync/internal/client/models"
)

// Repository describes storage operations for Friend records.
type Repository interface {
	// Get returns the friend with the given id or common.ErrNotFound.
	Get(ctx context.Context, id string) (*models.Friend, error)

	// Insert adds a new row and fails with common.ErrAlreadyExists on a
	// duplicate id.
	Insert(ctx context.Context, f *models.Friend) error

	// Put writes the full row, inserting it when missing.
	Put(ctx context.Context, f *models.Friend) error

	// Replace is Put for records received from the remote authority.
	Replace(ctx context.Context, f *models.Friend) error

	// Delete removes the row. Deleting a missing row is not an error.
	Delete(ctx context.Context, id string) error

	// List returns friends ordered by name; tombstoned rows only when
	// includeDeleted is set.
	List(ctx context.Context, includeDeleted bool) ([]*models.Friend, error)

	// ListByAgeRange returns live friends with min <= age <= max.
	ListByAgeRange(ctx context.Context, min, max int) ([]*models.Friend, error)
}
