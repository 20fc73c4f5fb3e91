package storage

import (
	"context"
	"io"
)

// PayloadStore archives submitted job payloads for audit and replay.
// Implementations are S3-compatible object stores.
type PayloadStore interface {
	// Upload stores a payload under key
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download retrieves a payload by key
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks whether a payload is archived under key
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes an archived payload
	Delete(ctx context.Context, key string) error

	// EnsureBucket creates the backing bucket if it does not exist
	EnsureBucket(ctx context.Context) error
}
