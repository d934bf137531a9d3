package storage

import (
	"context"
	"io"
)

// ObjectStorage abstracts where raw upload files are retained. Uploaded
// CSVs are kept under their job's storage key for audit and re-ingestion.
type ObjectStorage interface {
	// Upload stores an object under the given key
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL for accessing an object
	GetURL(key string) string

	// Delete removes an object
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}
