package domain

import (
	"fmt"
	"strings"
)

// MaxImageBytes is the largest image a seller may attach to a listing.
const MaxImageBytes int64 = 5 * 1024 * 1024

// ValidateImage checks an upload against the image policy before any
// bytes leave the caller.
func ValidateImage(contentType string, size, maxBytes int64) error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return ValidationFailed("file", "please upload an image file")
	}
	if size <= 0 {
		return ValidationFailed("file", "image is empty")
	}
	if size > maxBytes {
		return ValidationFailed("file", fmt.Sprintf("image must be less than %dMB", maxBytes/(1024*1024)))
	}
	return nil
}
