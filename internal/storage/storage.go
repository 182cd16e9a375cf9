// Package storage keeps profile images on local disk or in an S3-compatible
// bucket. Images are addressed by an opaque handle of the form <uuid>.<ext>.
package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Open for handles with no stored object.
var ErrNotFound = errors.New("image not found")

// ErrInvalidHandle is returned for handles this package could not have issued.
var ErrInvalidHandle = errors.New("invalid image handle")

// Store saves and removes image blobs.
type Store interface {
	Save(ctx context.Context, data []byte) (string, error)
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
	Delete(ctx context.Context, handle string) error
}

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

func newHandle(data []byte) string {
	ext, ok := extensions[http.DetectContentType(data)]
	if !ok {
		ext = ".bin"
	}
	return uuid.NewString() + ext
}

// ValidHandle reports whether h has the shape of a handle returned by Save.
func ValidHandle(h string) bool {
	ext := path.Ext(h)
	switch ext {
	case ".png", ".jpg", ".bin":
	default:
		return false
	}
	_, err := uuid.Parse(strings.TrimSuffix(h, ext))
	return err == nil
}

// ContentType returns the MIME type implied by a handle's extension.
func ContentType(h string) string {
	switch path.Ext(h) {
	case ".png":
		return "image/png"
	case ".jpg":
		return "image/jpeg"
	}
	return "application/octet-stream"
}
