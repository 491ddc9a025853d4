package storage_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathFromURL(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		want   string
		wantOK bool
	}{
		{
			name:   "local url",
			url:    "http://localhost:8080/storage/car-images/u1/123-abc.jpg",
			want:   "u1/123-abc.jpg",
			wantOK: true,
		},
		{
			name:   "cloudinary url",
			url:    "https://res.cloudinary.com/demo/image/upload/v1700000000/car-images/u1/123-abc.jpg",
			want:   "u1/123-abc.jpg",
			wantOK: true,
		},
		{
			name:   "query string dropped",
			url:    "https://cdn.example.com/car-images/u1/a.png?width=200",
			want:   "u1/a.png",
			wantOK: true,
		},
		{name: "other bucket", url: "https://cdn.example.com/avatars/u1/a.png", wantOK: false},
		{name: "bucket without path", url: "https://cdn.example.com/car-images/", wantOK: false},
		{name: "empty", url: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := storage.PathFromURL(tt.url, "car-images")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanPath(t *testing.T) {
	valid := []string{"u1/a.jpg", "u1/nested/b.png"}
	for _, p := range valid {
		got, err := storage.CleanPath(p)
		require.NoError(t, err, p)
		assert.Equal(t, p, got)
	}

	invalid := []string{"", "/abs.jpg", "../escape.jpg", "u1/../../x", "u1//a.jpg", "u1\\a.jpg", "."}
	for _, p := range invalid {
		_, err := storage.CleanPath(p)
		assert.ErrorIs(t, err, domain.ErrValidation, p)
	}
}

func TestOwner(t *testing.T) {
	assert.Equal(t, "u1", storage.Owner("u1/a.jpg"))
	assert.Equal(t, "", storage.Owner("a.jpg"))
}

func TestLocalStore_UploadServeDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir, "car-images", "http://example.test/")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := store.Upload(ctx, "u1/photo.jpg", "image/jpeg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "http://example.test/storage/car-images/u1/photo.jpg", url)

	p, ok := storage.PathFromURL(url, "car-images")
	require.True(t, ok)
	assert.Equal(t, "u1/photo.jpg", p)

	// Objects are write-once.
	_, err = store.Upload(ctx, "u1/photo.jpg", "image/jpeg", strings.NewReader("again"))
	assert.Error(t, err)

	rec := httptest.NewRecorder()
	store.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/storage/car-images/u1/photo.jpg", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "jpeg-bytes", string(body))

	require.NoError(t, store.Delete(ctx, "u1/photo.jpg"))
	_, err = os.Stat(filepath.Join(dir, "car-images", "u1", "photo.jpg"))
	assert.True(t, os.IsNotExist(err))

	// Deleting a missing object is a no-op.
	assert.NoError(t, store.Delete(ctx, "u1/photo.jpg"))
}

func TestLocalStore_RejectsEscapingPaths(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), "car-images", "http://example.test")
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), "../outside.jpg", "image/jpeg", strings.NewReader("x"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}
