// Package tags stores record tags in the local SQLite database.
package tags

import (
	"context"

	"github.com/dmitrijs2005/offsync/internal/client/models"
)

type Repository interface {
	Get(ctx context.Context, id string) (*models.Tag, error)
	Insert(ctx context.Context, t *models.Tag) error
	Put(ctx context.Context, t *models.Tag) error
	Replace(ctx context.Context, t *models.Tag) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, includeDeleted bool) ([]*models.Tag, error)

	// FindByName looks up a live tag by name, ignoring case. It returns
	// common.ErrNotFound when there is none.
	FindByName(ctx context.Context, name string) (*models.Tag, error)
}
