package common

// RequestIDHeader carries the request id between the sync client and the
// remote authority so both sides can correlate log lines.
const RequestIDHeader = "X-Request-Id"

// Wire paths of the remote authority.
const (
	PushPath   = "/sync/push"
	PullPath   = "/sync/pull"
	UploadPath = "/sync/upload"
	FilesPath  = "/files/"
)
