package models

import (
	"fmt"
	"io"
)

// UploadStatus tracks the binary transfer of an attachment.
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadUploaded  UploadStatus = "uploaded"
	UploadFailed    UploadStatus = "failed"
)

func (s UploadStatus) Valid() bool {
	switch s {
	case UploadPending, UploadUploading, UploadUploaded, UploadFailed:
		return true
	}
	return false
}

// Attachment is file metadata; the bytes live in the local blob store until
// uploaded. BlobRef never leaves the device.
type Attachment struct {
	ID           string       `json:"id"`
	Filename     string       `json:"filename"`
	MimeType     string       `json:"mimeType"`
	Size         int64        `json:"size"`
	URL          string       `json:"url,omitempty"`
	UploadStatus UploadStatus `json:"uploadStatus"`
	FriendID     string       `json:"friendId,omitempty"`
	RecordTags   []string     `json:"record_tags"`
	UpdatedAt    int64        `json:"updatedAt"`
	DeletedAt    *int64       `json:"deletedAt"`

	BlobRef string `json:"-"`
}

func (a *Attachment) Key() string           { return a.ID }
func (a *Attachment) SetKey(id string)      { a.ID = id }
func (a *Attachment) Touch(now int64)       { a.UpdatedAt = now }
func (a *Attachment) MarkDeleted(now int64) { a.DeletedAt = Int64(now) }
func (a *Attachment) ClearDeleted()         { a.DeletedAt = nil }

// Normalize defaults the tag list. A record without a status was written by
// a client that only synced finished uploads, so it counts as uploaded.
func (a *Attachment) Normalize() {
	a.RecordTags = normalizeTags(a.RecordTags)
	if a.UploadStatus == "" {
		a.UploadStatus = UploadUploaded
	}
}

func (a *Attachment) Validate() error {
	if a.ID == "" {
		return ErrEmptyID
	}
	if a.Filename == "" {
		return fmt.Errorf("attachment %s: filename is required", a.ID)
	}
	if !a.UploadStatus.Valid() {
		return fmt.Errorf("attachment %s: unknown upload status %q", a.ID, a.UploadStatus)
	}
	return nil
}

// AttachmentMeta is what the caller supplies when storing a new file.
type AttachmentMeta struct {
	Filename   string
	MimeType   string
	FriendID   string
	RecordTags []string
}

// UploadRequest is one binary transfer to the remote store.
type UploadRequest struct {
	ID       string
	Filename string
	MimeType string
	FriendID string
	Body     io.Reader
}
