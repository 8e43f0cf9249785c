// Package services implements the client use cases on top of the captured
// repositories: friends and record tags. Attachments are handled by the
// attachments package and synchronization by syncer.
package services
