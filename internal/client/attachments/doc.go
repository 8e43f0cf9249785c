// Package attachments accepts files while offline and uploads them later.
//
// Store keeps the payload in the local blob store and records an Attachment
// in state "pending". DrainPending, run by the sync engine, moves each
// pending attachment through "uploading" to "uploaded" or "failed". Every
// transition is a captured update, so the status and URL reach the remote
// authority through the regular outbox. "failed" is terminal here.
package attachments
