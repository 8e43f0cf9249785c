// Package models defines the server's change log records and the JSON
// shapes of the /sync endpoints.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Tables the server accepts changes for.
var Tables = map[string]struct{}{
	"friends":     {},
	"attachments": {},
	"record_tags": {},
}

// Change is one accepted mutation. Seq is assigned by the change log and is
// strictly increasing in commit order.
type Change struct {
	Seq      int64
	ChangeID string
	Table    string
	PK       string
	Op       Op
	Data     json.RawMessage
	ClientTS int64
}

// PushChange is an outbox entry as a client sends it.
type PushChange struct {
	ChangeID   string          `json:"changeId"`
	Table      string          `json:"table"`
	PrimaryKey string          `json:"primary_key"`
	Op         Op              `json:"op"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	TS         int64           `json:"ts"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"lastError,omitempty"`
}

var (
	errNoChangeID = errors.New("changeId is required")
	errNoPK       = errors.New("primary_key is required")
)

// Validate checks that the change can be stored and replayed.
func (c *PushChange) Validate() error {
	if c.ChangeID == "" {
		return errNoChangeID
	}
	if _, ok := Tables[c.Table]; !ok {
		return fmt.Errorf("unknown table %q", c.Table)
	}
	if c.PrimaryKey == "" {
		return errNoPK
	}
	switch c.Op {
	case OpDelete:
		return nil
	case OpUpsert:
	default:
		return fmt.Errorf("unknown op %q", c.Op)
	}

	payload := bytes.TrimSpace(c.Payload)
	if len(payload) == 0 || payload[0] != '{' {
		return errors.New("upsert needs an object payload")
	}
	var head struct {
		ID *string `json:"id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if head.ID != nil && *head.ID != c.PrimaryKey {
		return fmt.Errorf("payload id %q does not match primary_key %q", *head.ID, c.PrimaryKey)
	}
	return nil
}

// Change converts a validated push entry into a log record.
func (c *PushChange) Change() *Change {
	ch := &Change{
		ChangeID: c.ChangeID,
		Table:    c.Table,
		PK:       c.PrimaryKey,
		Op:       c.Op,
		ClientTS: c.TS,
	}
	if c.Op == OpUpsert {
		ch.Data = c.Payload
	}
	return ch
}

type PushRequest struct {
	Changes []PushChange `json:"changes"`
}

type PushResponse struct {
	AckedChangeIDs []string `json:"ackedChangeIds"`
}

type PullRequest struct {
	SinceSeq int64 `json:"sinceSeq"`
	Limit    int   `json:"limit"`
}

type RemoteChange struct {
	Table string          `json:"table"`
	Op    Op              `json:"op"`
	PK    string          `json:"pk"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type PullResponse struct {
	Changes []RemoteChange `json:"changes"`
	NewSeq  int64          `json:"newSeq"`
	HasMore bool           `json:"hasMore"`
}

type UploadResponse struct {
	URL string `json:"url"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
