// Package syncstate keeps one pull cursor per synced collection.
package syncstate

import (
	"context"
)

type Repository interface {
	// Get returns the last applied remote sequence, 0 when none was stored.
	Get(ctx context.Context, key string) (int64, error)
	// Set stores the cursor; callers write it in the transaction that
	// applied the corresponding batch.
	Set(ctx context.Context, key string, lastSeq int64) error
	List(ctx context.Context) (map[string]int64, error)
	Delete(ctx context.Context, key string) error
}
