package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FileSystem stores files below a root directory, one file per key.
type FileSystem struct {
	root string
}

// NewFileSystem creates the root directory if needed.
func NewFileSystem(root string) (*FileSystem, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FileSystem{root: root}, nil
}

func (f *FileSystem) path(key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(key)), nil
}

// Put writes through a temp file and renames it into place so readers never
// see a partial file.
func (f *FileSystem) Put(_ context.Context, key string, r io.Reader, size int64, _ string) error {
	dest, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write content: %w", err)
	}
	if size >= 0 && written != size {
		tmp.Close()
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

func (f *FileSystem) Get(_ context.Context, key string) (io.ReadCloser, error) {
	src, err := f.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

func (f *FileSystem) Delete(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
