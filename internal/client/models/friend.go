package models

import (
	"fmt"
	"strings"
)

// Friend is the primary synced entity.
type Friend struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Age        int      `json:"age"`
	RecordTags []string `json:"record_tags"`
	UpdatedAt  int64    `json:"updatedAt"`
	DeletedAt  *int64   `json:"deletedAt"`
}

func (f *Friend) Key() string           { return f.ID }
func (f *Friend) SetKey(id string)      { f.ID = id }
func (f *Friend) Touch(now int64)       { f.UpdatedAt = now }
func (f *Friend) MarkDeleted(now int64) { f.DeletedAt = Int64(now) }
func (f *Friend) ClearDeleted()         { f.DeletedAt = nil }

func (f *Friend) Normalize() {
	f.RecordTags = normalizeTags(f.RecordTags)
}

func (f *Friend) Validate() error {
	if f.ID == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("friend %s: name is required", f.ID)
	}
	if f.Age < 0 {
		return fmt.Errorf("friend %s: age must not be negative", f.ID)
	}
	return nil
}

// Live reports whether the friend has no tombstone.
func (f *Friend) Live() bool { return f.DeletedAt == nil }

// HasTag reports whether tagID is attached to the friend.
func (f *Friend) HasTag(tagID string) bool {
	for _, t := range f.RecordTags {
		if t == tagID {
			return true
		}
	}
	return false
}
