// Package outbox persists captured local mutations until the remote
// authority acknowledges them.
//
// Entries are read in (ts, seq) order. Change capture assigns ts on a single
// writer so that order equals insertion order.
package outbox

import (
	"context"

	"github.com/dmitrijs2005/offsync/internal/client/models"
)

type Repository interface {
	// Append stores a new entry and fills in its Seq.
	Append(ctx context.Context, e *models.OutboxEntry) error

	// Head returns the oldest entry, or nil when the outbox is empty.
	Head(ctx context.Context) (*models.OutboxEntry, error)

	// ListAfter returns up to limit entries whose seq is greater than afterSeq.
	ListAfter(ctx context.Context, afterSeq int64, limit int) ([]*models.OutboxEntry, error)

	// List returns every entry in order.
	List(ctx context.Context) ([]*models.OutboxEntry, error)

	// DeleteByChangeIDs removes acknowledged entries and reports how many
	// rows were removed.
	DeleteByChangeIDs(ctx context.Context, ids []string) (int64, error)

	// RecordFailure bumps attempts and stores the error and next due time.
	RecordFailure(ctx context.Context, ids []string, lastError string, nextAttemptAt int64) error

	// Count returns the number of queued entries.
	Count(ctx context.Context) (int64, error)

	// MaxTS returns the newest capture timestamp, 0 for an empty outbox.
	MaxTS(ctx context.Context) (int64, error)

	// HasPending reports whether an un-acknowledged entry exists for the row.
	HasPending(ctx context.Context, table models.Table, pk string) (bool, error)
}
