// Package capture turns every local entity write into an outbox entry.
//
// All local mutations and every pull-apply transaction run on a single
// worker owned by Recorder. A mutation task commits the entity write first
// and appends the outbox entry in a follow-up transaction; an append that
// fails is kept in memory, in order, and retried before the next task.
//
// Writes performed inside an apply scope (see ApplyRemote) are the remote
// authority's changes being mirrored locally. They run inline in the scope's
// transaction and never produce outbox entries.
package capture
