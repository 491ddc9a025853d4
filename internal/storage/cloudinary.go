package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/dom/car-marketplace/internal/config"
)

// CloudinaryStore uploads images to Cloudinary with public id
// "<bucket>/<path without extension>", so delivery URLs keep the
// "/<bucket>/<path>" shape PathFromURL relies on.
type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	bucket string
}

func NewCloudinaryStore(cfg config.CloudinaryConfig, bucket string) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return &CloudinaryStore{cld: cld, bucket: bucket}, nil
}

func (s *CloudinaryStore) publicID(p string) string {
	return s.bucket + "/" + strings.TrimSuffix(p, path.Ext(p))
}

func (s *CloudinaryStore) Upload(ctx context.Context, p, contentType string, body io.Reader) (string, error) {
	p, err := CleanPath(p)
	if err != nil {
		return "", err
	}

	resp, err := s.cld.Upload.Upload(ctx, body, uploader.UploadParams{
		PublicID: s.publicID(p),
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if resp.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload: %s", resp.Error.Message)
	}
	return resp.SecureURL, nil
}

func (s *CloudinaryStore) Delete(ctx context.Context, p string) error {
	p, err := CleanPath(p)
	if err != nil {
		return err
	}

	resp, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID: s.publicID(p),
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if resp.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy: %s", resp.Error.Message)
	}
	// "not found" is a successful no-op delete.
	return nil
}
