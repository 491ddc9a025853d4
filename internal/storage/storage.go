// Package storage holds listing images. Object paths are "<user_id>/<name>"
// inside a single bucket; the public URL always contains "/<bucket>/<path>".
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dom/car-marketplace/internal/config"
	"github.com/dom/car-marketplace/internal/domain"
)

type ObjectStore interface {
	// Upload stores body at path and returns its public URL.
	Upload(ctx context.Context, path, contentType string, body io.Reader) (string, error)
	// Delete removes the object at path. Missing objects are not an error.
	Delete(ctx context.Context, path string) error
}

// New builds the store selected by cfg.Backend.
func New(cfg config.StorageConfig, publicBaseURL string) (ObjectStore, error) {
	switch cfg.Backend {
	case config.StorageBackendLocal:
		return NewLocalStore(cfg.Dir, cfg.Bucket, publicBaseURL)
	case config.StorageBackendCloudinary:
		return NewCloudinaryStore(cfg.Cloudinary, cfg.Bucket)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// PathFromURL extracts the object path following "/<bucket>/" in publicURL.
func PathFromURL(publicURL, bucket string) (string, bool) {
	marker := "/" + bucket + "/"
	idx := strings.Index(publicURL, marker)
	if idx < 0 {
		return "", false
	}
	p := publicURL[idx+len(marker):]
	if q := strings.IndexAny(p, "?#"); q >= 0 {
		p = p[:q]
	}
	if p == "" {
		return "", false
	}
	return p, true
}

// CleanPath rejects empty, absolute and parent-escaping object paths.
func CleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", domain.ValidationFailed("path", "invalid object path")
	}
	cleaned := path.Clean(p)
	if cleaned != p || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", domain.ValidationFailed("path", "invalid object path")
	}
	return cleaned, nil
}

// Owner returns the namespace segment of an object path.
func Owner(p string) string {
	if i := strings.Index(p, "/"); i > 0 {
		return p[:i]
	}
	return ""
}
