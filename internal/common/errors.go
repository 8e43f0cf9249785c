// Package common defines sentinel errors shared by the client and the
// reference server. Callers should match them with errors.Is.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Validation errors for user input and remote payloads.
	ErrValidation      = errors.New("validation error")
	ErrMalformedChange = errors.New("malformed change")

	// Transport errors.
	ErrUnavailable = errors.New("server unavailable")

	// Sync lifecycle errors.
	ErrSyncInProgress   = errors.New("sync already in progress")
	ErrNotApplying      = errors.New("remote change applied outside of an apply scope")
	ErrCursorRegression = errors.New("remote cursor moved backwards")
	ErrCaptureBacklog   = errors.New("outbox entries not yet persisted")
	ErrClosed           = errors.New("closed")
)
