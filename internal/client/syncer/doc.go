// Package syncer reconciles the local store with the remote authority.
//
// SyncOnce runs three phases in order: pending attachment uploads, outbox
// push, and pull of remote changes since the stored cursor. It has no timers
// of its own; callers decide when to run it.
package syncer
