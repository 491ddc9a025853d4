package service

import (
	"context"
	"io"

	"github.com/dom/car-marketplace/internal/config"
	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/storage"
	"github.com/google/uuid"
)

type UploadService struct {
	store    storage.ObjectStore
	bucket   string
	maxBytes int64
}

func NewUploadService(store storage.ObjectStore, cfg config.StorageConfig) *UploadService {
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = domain.MaxImageBytes
	}
	return &UploadService{
		store:    store,
		bucket:   cfg.Bucket,
		maxBytes: maxBytes,
	}
}

type UploadInput struct {
	Bucket      string
	Path        string
	ContentType string
	Size        int64
	Body        io.Reader
}

func (s *UploadService) Bucket() string {
	return s.bucket
}

// Upload stores an image under the caller's namespace and returns its public URL.
func (s *UploadService) Upload(ctx context.Context, userID uuid.UUID, input UploadInput) (string, error) {
	p, err := s.authorize(userID, input.Bucket, input.Path)
	if err != nil {
		return "", err
	}
	if err := domain.ValidateImage(input.ContentType, input.Size, s.maxBytes); err != nil {
		return "", err
	}
	return s.store.Upload(ctx, p, input.ContentType, io.LimitReader(input.Body, s.maxBytes))
}

// Delete removes an object from the caller's namespace.
func (s *UploadService) Delete(ctx context.Context, userID uuid.UUID, bucket, objectPath string) error {
	p, err := s.authorize(userID, bucket, objectPath)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, p)
}

func (s *UploadService) authorize(userID uuid.UUID, bucket, objectPath string) (string, error) {
	if bucket != s.bucket {
		return "", domain.NotFound("bucket", bucket)
	}
	p, err := storage.CleanPath(objectPath)
	if err != nil {
		return "", err
	}
	if storage.Owner(p) != userID.String() {
		return "", domain.Forbidden("you can only manage files in your own folder")
	}
	return p, nil
}
