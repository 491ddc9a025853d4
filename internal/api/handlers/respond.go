package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/dom/car-marketplace/internal/api/middleware"
	"github.com/dom/car-marketplace/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Error kinds carried in the "error" field of every error response.
const (
	KindValidation         = "validation_error"
	KindNotFound           = "not_found"
	KindForbidden          = "forbidden"
	KindConflict           = "conflict"
	KindInvalidTransition  = "invalid_transition"
	KindUnauthenticated    = "unauthenticated"
	KindInvalidCredentials = "invalid_credentials"
	KindUnverifiedAccount  = "unverified_account"
	KindSessionExpired     = "session_expired"
	KindUnavailable        = "unavailable"
	KindInternal           = "internal_error"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("ERROR [handlers.writeJSON] encode response: %v", err)
		}
	}
}

// writeError maps a domain error to its HTTP status and JSON body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)

	resp := ErrorResponse{Error: kind, Message: domain.ErrorText(err)}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		resp.Field = appErr.Field
	}

	if status >= http.StatusInternalServerError {
		log.Printf("ERROR [%s %s] %v", r.Method, r.URL.Path, err)
		if kind == KindInternal {
			resp.Message = "An internal error occurred"
		}
	}

	writeJSON(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, KindValidation
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, KindInvalidCredentials
	case errors.Is(err, domain.ErrUnverifiedAccount):
		return http.StatusForbidden, KindUnverifiedAccount
	case errors.Is(err, domain.ErrSessionExpired):
		return http.StatusUnauthorized, KindSessionExpired
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, KindUnauthenticated
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, KindForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, KindNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, KindConflict
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, KindInvalidTransition
	case errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable, KindUnavailable
	}
	return http.StatusInternalServerError, KindInternal
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ValidationFailed("body", "invalid request body")
	}
	return nil
}

// requireUser returns the authenticated caller. Routes using it sit behind
// middleware.Auth, so a miss is a wiring bug reported as 401.
func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, r, domain.ErrUnauthenticated)
		return uuid.Nil, false
	}
	return userID, true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, domain.ValidationFailed(name, "invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

func optionalUUIDQuery(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, domain.ValidationFailed(name, "invalid "+name)
	}
	return &id, nil
}

func optionalInt64Query(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, domain.ValidationFailed(name, name+" must be a number")
	}
	return &v, nil
}
