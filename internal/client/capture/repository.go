package capture

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/dbx"
)

// Store is the row-level storage a capture Repository writes through.
type Store[T any] interface {
	Get(ctx context.Context, id string) (*T, error)
	Insert(ctx context.Context, rec *T) error
	Put(ctx context.Context, rec *T) error
	Replace(ctx context.Context, rec *T) error
	Delete(ctx context.Context, id string) error
}

// Record constrains P to the pointer type of T implementing models.Record.
type Record[T any] interface {
	*T
	models.Record
}

// Repository wraps entity writes of one table with change capture.
type Repository[T any, P Record[T]] struct {
	table models.Table
	rec   *Recorder
	open  func(dbx.DBTX) Store[T]
}

func NewRepository[T any, P Record[T]](rec *Recorder, table models.Table, open func(dbx.DBTX) Store[T]) *Repository[T, P] {
	return &Repository[T, P]{table: table, rec: rec, open: open}
}

func (r *Repository[T, P]) Table() models.Table { return r.table }

// Get reads a row, joining the apply transaction when one is active.
func (r *Repository[T, P]) Get(ctx context.Context, id string) (*T, error) {
	if tx, ok := Applying(ctx); ok {
		return r.open(tx).Get(ctx, id)
	}
	return r.open(r.rec.db).Get(ctx, id)
}

// Create stamps and inserts rec, then captures an upsert of the stored
// snapshot. rec is updated in place.
func (r *Repository[T, P]) Create(ctx context.Context, rec *T) error {
	p := P(rec)
	if tx, ok := Applying(ctx); ok {
		p.Normalize()
		return r.open(tx).Insert(ctx, rec)
	}

	return r.rec.capture(ctx, r.table, func(ctx context.Context, tx dbx.DBTX, now int64) (*models.OutboxEntry, error) {
		p.Normalize()
		p.Touch(now)
		p.ClearDeleted()
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		if err := r.open(tx).Insert(ctx, rec); err != nil {
			return nil, err
		}
		return upsertEntry(p)
	})
}

// Update loads the row, applies mutate and writes the merged record back.
// The primary key and the update timestamp are not under mutate's control.
func (r *Repository[T, P]) Update(ctx context.Context, id string, mutate func(*T) error) (*T, error) {
	return r.update(ctx, id, func(p P, _ int64) error { return mutate((*T)(p)) })
}

// SoftDelete tombstones the row; the tombstone is synced as an upsert.
func (r *Repository[T, P]) SoftDelete(ctx context.Context, id string) (*T, error) {
	return r.update(ctx, id, func(p P, now int64) error {
		p.MarkDeleted(now)
		return nil
	})
}

func (r *Repository[T, P]) update(ctx context.Context, id string, mutate func(p P, now int64) error) (*T, error) {
	if tx, ok := Applying(ctx); ok {
		store := r.open(tx)
		cur, err := store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		p := P(cur)
		if err := mutate(p, 0); err != nil {
			return nil, err
		}
		p.SetKey(id)
		p.Normalize()
		return cur, store.Put(ctx, cur)
	}

	var out *T
	err := r.rec.capture(ctx, r.table, func(ctx context.Context, tx dbx.DBTX, now int64) (*models.OutboxEntry, error) {
		store := r.open(tx)
		cur, err := store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		p := P(cur)
		if err := mutate(p, now); err != nil {
			return nil, err
		}
		p.SetKey(id)
		p.Normalize()
		p.Touch(now)
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		if err := store.Put(ctx, cur); err != nil {
			return nil, err
		}
		out = cur
		return upsertEntry(p)
	})
	return out, err
}

// Delete removes the row and captures a delete carrying only the key.
func (r *Repository[T, P]) Delete(ctx context.Context, id string) error {
	if tx, ok := Applying(ctx); ok {
		return r.open(tx).Delete(ctx, id)
	}
	return r.rec.capture(ctx, r.table, func(ctx context.Context, tx dbx.DBTX, _ int64) (*models.OutboxEntry, error) {
		if err := r.open(tx).Delete(ctx, id); err != nil {
			return nil, err
		}
		return &models.OutboxEntry{PrimaryKey: id, Op: models.OpDelete}, nil
	})
}

// ApplyRemote mirrors one remote change into the apply transaction carried
// by ctx. It reports false when the change was skipped because the row has
// a local write still waiting in the outbox.
func (r *Repository[T, P]) ApplyRemote(ctx context.Context, ch models.RemoteChange) (bool, error) {
	tx, ok := Applying(ctx)
	if !ok {
		return false, common.ErrNotApplying
	}
	if ch.PK == "" {
		return false, fmt.Errorf("%w: %s change without pk", common.ErrMalformedChange, r.table)
	}

	pending, err := outbox.NewSQLiteRepository(tx).HasPending(ctx, r.table, ch.PK)
	if err != nil {
		return false, err
	}
	if pending {
		return false, nil
	}

	switch ch.Op {
	case models.OpUpsert:
		rec, err := r.decode(ch)
		if err != nil {
			return false, err
		}
		return true, r.open(tx).Replace(ctx, rec)
	case models.OpDelete:
		return true, r.open(tx).Delete(ctx, ch.PK)
	default:
		return false, fmt.Errorf("%w: unknown op %q", common.ErrMalformedChange, ch.Op)
	}
}

func (r *Repository[T, P]) decode(ch models.RemoteChange) (*T, error) {
	if len(ch.Data) == 0 || string(ch.Data) == "null" {
		return nil, fmt.Errorf("%w: %s/%s upsert without data", common.ErrMalformedChange, r.table, ch.PK)
	}

	rec := new(T)
	if err := json.Unmarshal(ch.Data, rec); err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", common.ErrMalformedChange, r.table, ch.PK, err)
	}

	p := P(rec)
	switch p.Key() {
	case "":
		p.SetKey(ch.PK)
	case ch.PK:
	default:
		return nil, fmt.Errorf("%w: %s/%s carries id %q", common.ErrMalformedChange, r.table, ch.PK, p.Key())
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedChange, err)
	}
	return rec, nil
}

func upsertEntry(rec models.Record) (*models.OutboxEntry, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return &models.OutboxEntry{PrimaryKey: rec.Key(), Op: models.OpUpsert, Payload: payload}, nil
}
