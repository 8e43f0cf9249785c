package models

import "encoding/json"

// Op is the kind of change carried by an outbox entry or a remote change.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

func (o Op) Valid() bool {
	return o == OpUpsert || o == OpDelete
}

// OutboxEntry is one captured local mutation waiting for acknowledgment.
// Seq and NextAttemptAt are local bookkeeping and are not sent.
type OutboxEntry struct {
	Seq           int64           `json:"-"`
	ChangeID      string          `json:"changeId"`
	Table         Table           `json:"table"`
	PrimaryKey    string          `json:"primary_key"`
	Op            Op              `json:"op"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	TS            int64           `json:"ts"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"lastError,omitempty"`
	NextAttemptAt int64           `json:"-"`
}

// RemoteChange is one element of the pull stream.
type RemoteChange struct {
	Table Table           `json:"table"`
	Op    Op              `json:"op"`
	PK    string          `json:"pk"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type PushRequest struct {
	Changes []*OutboxEntry `json:"changes"`
}

type PushResponse struct {
	AckedChangeIDs []string `json:"ackedChangeIds"`
}

type PullRequest struct {
	SinceSeq int64 `json:"sinceSeq"`
	Limit    int   `json:"limit"`
}

type PullResponse struct {
	Changes []RemoteChange `json:"changes"`
	NewSeq  int64          `json:"newSeq"`
	HasMore bool           `json:"hasMore"`
}

type UploadResponse struct {
	URL string `json:"url"`
}
