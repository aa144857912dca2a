package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var ErrImageNotFound = errors.New("image not found")

// Store holds original image bytes for critiques that are not stored inline.
type Store interface {
	Save(ctx context.Context, key string, data io.Reader, size int64, contentType string) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	EnsureReady(ctx context.Context) error
}

// FileSystemStore stores images under a local directory.
type FileSystemStore struct {
	basePath string
}

func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureReady creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureReady(context.Context) error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Save writes data to {key}.img and returns the number of bytes written.
func (fs *FileSystemStore) Save(_ context.Context, key string, data io.Reader, _ int64, _ string) (int64, error) {
	filePath := fs.filePath(key)

	file, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file %s: %w", filePath, err)
	}
	defer file.Close()

	n, err := io.Copy(file, data)
	if err != nil {
		os.Remove(filePath)
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	return n, nil
}

func (fs *FileSystemStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(fs.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrImageNotFound, key)
		}
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return f, nil
}

// Delete removes the stored image. A missing file is not an error.
func (fs *FileSystemStore) Delete(_ context.Context, key string) error {
	filePath := fs.filePath(key)
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", filePath, err)
	}
	return nil
}

func (fs *FileSystemStore) filePath(key string) string {
	return filepath.Join(fs.basePath, filepath.Base(key)+".img")
}
