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

// DiskStore keeps images as files in a single directory.
type DiskStore struct {
	dir string
}

// NewDiskStore creates dir if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (d *DiskStore) Save(_ context.Context, data []byte) (string, error) {
	handle := newHandle(data)
	if err := os.WriteFile(filepath.Join(d.dir, handle), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return handle, nil
}

func (d *DiskStore) Open(_ context.Context, handle string) (io.ReadCloser, error) {
	if !ValidHandle(handle) {
		return nil, ErrInvalidHandle
	}
	f, err := os.Open(filepath.Join(d.dir, handle))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	return f, nil
}

// Delete removes the image. Missing files are not an error.
func (d *DiskStore) Delete(_ context.Context, handle string) error {
	if !ValidHandle(handle) {
		return ErrInvalidHandle
	}
	err := os.Remove(filepath.Join(d.dir, handle))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}
