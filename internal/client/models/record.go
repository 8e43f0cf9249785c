// Package models defines the client-side records kept in the local store and
// exchanged with the remote authority.
//
// Synced entities carry three mandatory fields: ID (client generated),
// UpdatedAt (unix milliseconds of the last local write) and DeletedAt
// (nil while the record is live). They serialize to the wire names used by
// the remote authority, and an explicit "deletedAt": null is sent for live
// records so the remote can tell "not deleted" from "field missing".
package models

import (
	"errors"
	"time"
)

// Table names a synced collection on the wire and in the outbox.
type Table string

const (
	TableFriends     Table = "friends"
	TableAttachments Table = "attachments"
	TableRecordTags  Table = "record_tags"
)

// Tables lists every synced table.
var Tables = []Table{TableFriends, TableAttachments, TableRecordTags}

// Valid reports whether t is a known synced table.
func (t Table) Valid() bool {
	for _, known := range Tables {
		if t == known {
			return true
		}
	}
	return false
}

// Record is implemented by every synced entity.
//
// Entity schema history:
//   - v1: friends and attachments without tags.
//   - v2: record_tags table; friends and attachments carry RecordTags.
//
// Normalize fills the defaults of every optional field so records written by
// older clients decode into the current shape.
type Record interface {
	Key() string
	SetKey(id string)
	Touch(now int64)
	MarkDeleted(now int64)
	ClearDeleted()
	Normalize()
	Validate() error
}

var ErrEmptyID = errors.New("record id is empty")

// Millis converts t into the unix-millisecond timestamps used on the wire.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// Time converts unix milliseconds back into a UTC time.
func Time(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

func normalizeTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
