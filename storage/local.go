package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalStorage keeps evidence blobs on the local filesystem, for development
// and single-node deployments. Directories are created 0700: evidence is
// user-private material.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a local backend rooted at basePath
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create evidence directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Upload stages the blob in a temp file and renames it into place, so an
// interrupted upload never leaves a partial evidence file at the final path
func (s *LocalStorage) Upload(ctx context.Context, fileID uuid.UUID, filename string, data io.Reader) (string, error) {
	storagePath := generateStoragePath(fileID, filename)
	fullPath := filepath.Join(s.basePath, storagePath)

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create evidence directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to stage evidence file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write evidence file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to flush evidence file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return "", fmt.Errorf("failed to finalize evidence file: %w", err)
	}

	return storagePath, nil
}

// Download retrieves an evidence blob by storage path
func (s *LocalStorage) Download(ctx context.Context, storagePath string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(s.basePath, storagePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("evidence file not found: %s", storagePath)
		}
		return nil, fmt.Errorf("failed to open evidence file: %w", err)
	}
	return file, nil
}

// Delete removes an evidence blob; a path that is already gone is not an error
func (s *LocalStorage) Delete(ctx context.Context, storagePath string) error {
	if err := os.Remove(filepath.Join(s.basePath, storagePath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete evidence file: %w", err)
	}
	return nil
}
