// Package storage keeps invoice attachments in object storage and enforces
// the attachment allow-list.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// DefaultMaxBytes is the attachment size ceiling (25MB).
const DefaultMaxBytes int64 = 25 << 20

// allowed maps sniffed content types to the extension used in object keys.
var allowed = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/webp":      ".webp",
}

var (
	// ErrEmpty indicates a zero-length upload.
	ErrEmpty = errors.New("storage: empty attachment")
	// ErrTooLarge indicates the attachment exceeds the size ceiling.
	ErrTooLarge = errors.New("storage: attachment too large")
	// ErrType indicates a content type outside the allow-list.
	ErrType = errors.New("storage: attachment type not allowed")
)

// Store accepts bytes and returns a stable reference.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
}

// DetectAllowed sniffs the payload and returns its content type and extension.
// Errors carry shared.ErrValidation so the HTTP layer answers 400.
func DetectAllowed(body []byte, maxBytes int64) (string, string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(body) == 0 {
		return "", "", fmt.Errorf("%w: %w", shared.ErrValidation, ErrEmpty)
	}
	if int64(len(body)) > maxBytes {
		return "", "", fmt.Errorf("%w: %w (%d > %d bytes)", shared.ErrValidation, ErrTooLarge, len(body), maxBytes)
	}
	mt := mimetype.Detect(body)
	for ct, ext := range allowed {
		if mt.Is(ct) {
			return ct, ext, nil
		}
	}
	return "", "", fmt.Errorf("%w: %w (%s)", shared.ErrValidation, ErrType, mt.String())
}

// ObjectKey builds a unique key under prefix, partitioned by month.
func ObjectKey(prefix, ext string, now time.Time) string {
	return path.Join(prefix, now.UTC().Format("2006/01"), uuid.NewString()+ext)
}
