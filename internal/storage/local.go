package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps raw uploads on the local filesystem under a root
// directory. It is the default backend for single-node deployments.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a filesystem-backed storage rooted at path.
func NewLocalStorage(path string) (*LocalStorage, error) {
	if path == "" {
		path = "data/uploads"
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{root: path}, nil
}

// resolve maps a key to a path inside the root, rejecting traversal.
func (l *LocalStorage) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(l.root, clean), nil
}

// Upload writes the object to a temp file first, then renames it into
// place so readers never observe a partial file.
func (l *LocalStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to finalize object: %w", err)
	}
	return nil
}

// Download opens the object for reading.
func (l *LocalStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

// GetURL returns the filesystem path of the object.
func (l *LocalStorage) GetURL(key string) string {
	path, err := l.resolve(key)
	if err != nil {
		return ""
	}
	return path
}

// Delete removes the object. Deleting a missing object is not an error.
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists checks whether the object is present.
func (l *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	path, err := l.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}
