package models

import (
	"fmt"
	"strings"
)

// Tag is a user-defined label that friends and attachments refer to by id.
type Tag struct {
	ID        string `json:"id"`
	Name      string `json:"tag_name"`
	UpdatedAt int64  `json:"updatedAt"`
	DeletedAt *int64 `json:"deletedAt"`
}

func (t *Tag) Key() string           { return t.ID }
func (t *Tag) SetKey(id string)      { t.ID = id }
func (t *Tag) Touch(now int64)       { t.UpdatedAt = now }
func (t *Tag) MarkDeleted(now int64) { t.DeletedAt = Int64(now) }
func (t *Tag) ClearDeleted()         { t.DeletedAt = nil }

func (t *Tag) Normalize() {
	t.Name = strings.TrimSpace(t.Name)
}

func (t *Tag) Validate() error {
	if t.ID == "" {
		return ErrEmptyID
	}
	if t.Name == "" {
		return fmt.Errorf("tag %s: name is required", t.ID)
	}
	return nil
}
