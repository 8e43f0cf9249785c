// Package changelog keeps the server's sequenced stream of accepted changes.
//
// Appends are idempotent by change id: a change seen before keeps its
// original sequence number and is not stored twice. Sequence numbers are
// assigned in commit order, so a reader that has seen seq N never misses a
// change that later shows up below N.
package changelog

import (
	"context"

	"github.com/dmitrijs2005/offsync/internal/server/models"
)

type Store interface {
	// Append stores changes in order and sets Seq on each of them, including
	// duplicates (which get the seq they were first stored with).
	Append(ctx context.Context, changes []*models.Change) error
	// Since returns up to limit changes with seq > since, oldest first, and
	// whether more are available.
	Since(ctx context.Context, since int64, limit int) ([]*models.Change, bool, error)
	Close() error
}
