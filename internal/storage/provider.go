// Package storage defines the blob store seam used for account exports.
// Implementations live in the memory, local and gcs subpackages.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Open for unknown paths.
var ErrObjectNotFound = errors.New("blob object not found")

// BlobStore writes immutable objects and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// Opener is implemented by stores that can read back what they wrote.
type Opener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}
