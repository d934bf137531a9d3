package storage

import (
	"fmt"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/config"
)

// NewStorage creates the configured ObjectStorage backend. Local disk is
// the default when no type is set.
// Parameters:
//   - cfg: storage configuration including type, path or endpoint, credentials, and bucket.
// Returns:
//   - ObjectStorage: initialized storage backend.
//   - error: non-nil if the backend cannot be created.
func NewStorage(cfg *config.StorageConfig) (ObjectStorage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg.LocalPath)
	case "s3", "r2", "s3compatible":
		return NewS3Storage(cfg)
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}
