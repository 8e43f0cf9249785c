// Package attachments provides the client-side persistence layer for
// attachment metadata.
//
// # Overview
//
// The package defines a Repository interface for creating, replacing,
// querying and deleting Attachment records (file name, mime type, size,
// remote URL, upload status, owning friend, local blob reference). A
// SQLite-backed implementation (SQLiteRepository) persists data via a
// dbx.DBTX (*sql.DB or *sql.Tx).
//
// The blob_ref column is local-only. Put writes it; Replace, used when
// applying records received from the remote authority, leaves it untouched
// so a pending upload keeps its payload.
//
// Typical Usage
//
//	repo := attachments.NewSQLiteRepository(db)
//	pend, _ := repo.GetAllPendingUpload(ctx)
//	n, _ := repo.CountByBlobRef(ctx, ref)
//
// See also: internal/client/models.Attachment for field semantics.
package attachments
