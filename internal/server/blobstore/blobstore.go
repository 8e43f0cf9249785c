// Package blobstore keeps uploaded attachment payloads for the server.
package blobstore

import (
	"context"
	"io"
	"time"
)

// Object is a stored payload opened for reading. The caller closes Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

type Store interface {
	// Put stores r under key, replacing any previous object. size may be -1
	// when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Get opens the object stored under key or returns common.ErrNotFound.
	Get(ctx context.Context, key string) (*Object, error)
}

// Presigner is implemented by stores that can hand out a direct,
// time-limited download link.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
