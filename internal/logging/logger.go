// Package logging is the structured logger shared by the sync client and the
// reference server. Components take a Logger and tag it with their name via
// With("component", ...); SlogLogger is the only implementation.
package logging

import "context"

// Logger logs a message with key/value pairs, e.g.
//
//	log.Info(ctx, "sync finished", "pushed", n, "cursor", seq)
//
// The context is handed to the handler so request-scoped attributes survive.
type Logger interface {
	// Debug is for per-change detail: queued entries, applied rows.
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	// Warn is for conditions the caller recovers from, like a rejected
	// change or an offline remote.
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger carrying args on every record.
	With(args ...any) Logger
}
