package capture

import (
	"context"

	"github.com/dmitrijs2005/offsync/internal/dbx"
)

type applyKey struct{}
type workerKey struct{}

// WithApply marks ctx as running inside the pull-apply transaction tx.
func WithApply(ctx context.Context, tx dbx.DBTX) context.Context {
	return context.WithValue(ctx, applyKey{}, tx)
}

// Applying returns the pull-apply transaction carried by ctx, if any.
func Applying(ctx context.Context) (dbx.DBTX, bool) {
	tx, ok := ctx.Value(applyKey{}).(dbx.DBTX)
	return tx, ok && tx != nil
}

func onWorker(ctx context.Context) bool {
	v, _ := ctx.Value(workerKey{}).(bool)
	return v
}
