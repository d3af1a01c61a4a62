package storage

import (
	"context"
	"io"
)

// ObjectStorage is a remote bucket holding uploaded X-ray images.
type ObjectStorage interface {
	// Upload stores reader under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens the object at key. Missing objects yield domain.ErrNotFound.
	Download(ctx context.Context, key string) (*Object, error)

	// GetURL returns the public URL of key.
	GetURL(key string) string

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// EnsureBucket creates the bucket when the provider allows it.
	EnsureBucket(ctx context.Context) error
}

// Object is an open stored image.
type Object struct {
	Body        io.ReadCloser
	Size        int64 // -1 when unknown
	ContentType string
}
