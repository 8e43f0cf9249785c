// Package cli provides the offsync command-line client.
//
// It wires configuration, the local store, change capture, the attachment
// pipeline and the sync engine behind a cobra command tree:
//
//	offsync friends add|list|update|delete|range|tag|untag
//	offsync tags add|list|rename|delete
//	offsync attach add|list|url|delete
//	offsync sync
//	offsync status
//	offsync shell
//
// Every command works offline; only sync (and the shell's background sync)
// talks to the server. The shell runs the same commands in a REPL and, when
// a sync interval is configured, triggers SyncOnce periodically.
package cli
