package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/accounts/internal/storage"
)

type ImageOpener interface {
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
}

type ImageHandler struct {
	images ImageOpener
	logger *slog.Logger
}

func NewImageHandler(images ImageOpener, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{images: images, logger: logger.With("component", "image_handler")}
}

// Serve streams a stored profile image.
func (h *ImageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	rc, err := h.images.Open(r.Context(), handle)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidHandle) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "open image", "image", handle, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", storage.ContentType(handle))
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "stream image", "image", handle, "error", err)
	}
}
