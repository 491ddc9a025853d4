package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dom/car-marketplace/internal/domain"
)

// LocalStore keeps objects on disk under dir/bucket and serves them at
// baseURL/storage/bucket/.
type LocalStore struct {
	root    string
	bucket  string
	baseURL string
}

func NewLocalStore(dir, bucket, baseURL string) (*LocalStore, error) {
	root := filepath.Join(dir, bucket)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{
		root:    root,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *LocalStore) Upload(ctx context.Context, path, contentType string, body io.Reader) (string, error) {
	p, err := CleanPath(path)
	if err != nil {
		return "", err
	}

	full := filepath.Join(s.root, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", domain.Conflict("object", "a file already exists at "+p)
		}
		return "", fmt.Errorf("create object: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close object: %w", err)
	}

	return s.PublicURL(p), nil
}

func (s *LocalStore) Delete(ctx context.Context, path string) error {
	p, err := CleanPath(path)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.root, filepath.FromSlash(p)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// PublicURL returns the URL an object at path is served from.
func (s *LocalStore) PublicURL(path string) string {
	return s.baseURL + "/storage/" + s.bucket + "/" + path
}

// Handler serves stored objects read-only. Mount it at /storage/<bucket>/.
func (s *LocalStore) Handler() http.Handler {
	return http.StripPrefix("/storage/"+s.bucket+"/", http.FileServer(http.Dir(s.root)))
}
