package handlers

import (
	"bytes"
	"io"
	"net/http"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/service"
	"github.com/go-chi/chi/v5"
)

type StorageHandler struct {
	uploadService *service.UploadService
	maxBytes      int64
}

func NewStorageHandler(uploadService *service.UploadService, maxBytes int64) *StorageHandler {
	if maxBytes <= 0 {
		maxBytes = domain.MaxImageBytes
	}
	return &StorageHandler{uploadService: uploadService, maxBytes: maxBytes}
}

type UploadResponse struct {
	Path      string `json:"path"`
	PublicURL string `json:"publicUrl"`
}

// Upload stores the raw request body at /storage/{bucket}/<path>
func (h *StorageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	// One byte past the limit is enough to report the upload as too large.
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBytes+1))
	if err != nil {
		writeError(w, r, domain.ValidationFailed("file", "failed to read upload"))
		return
	}

	objectPath := chi.URLParam(r, "*")
	url, err := h.uploadService.Upload(r.Context(), userID, service.UploadInput{
		Bucket:      chi.URLParam(r, "bucket"),
		Path:        objectPath,
		ContentType: r.Header.Get("Content-Type"),
		Size:        int64(len(body)),
		Body:        bytes.NewReader(body),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{Path: objectPath, PublicURL: url})
}

func (h *StorageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	err := h.uploadService.Delete(r.Context(), userID, chi.URLParam(r, "bucket"), chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
