// Package friends provides the client-side persistence layer for Friend
// records.
//
// # Overview
//
// The package defines a Repository interface for reading and writing Friend
// rows, and a SQLite-backed implementation (SQLiteRepository) that persists
// data via a dbx.DBTX (*sql.DB or *sql.Tx). The repository is a raw table
// store: it does not stamp timestamps and does not write outbox entries.
// Application code goes through capture.Repository, which wraps these
// writes with change capture.
//
// Typical Usage
//
//	repo := friends.NewSQLiteRepository(tx)
//	_ = repo.Put(ctx, friend)
//	f, _ := repo.Get(ctx, id)
//	young, _ := repo.ListByAgeRange(ctx, 18, 30)
//
// See also: internal/client/models.Friend for field semantics.
package friends
