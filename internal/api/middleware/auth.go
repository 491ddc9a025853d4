package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/service"
	"github.com/google/uuid"
)

type contextKey string

const (
	UserIDKey contextKey = "userID"
)

// TokenAuthenticator resolves an access token to its user.
type TokenAuthenticator interface {
	Authenticate(token string) (uuid.UUID, error)
}

func Auth(authService TokenAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				log.Printf("ERROR [middleware.Auth] %v", err)
				writeAuthError(w, err)
				return
			}

			userID, err := authService.Authenticate(token)
			if err != nil {
				log.Printf("ERROR [middleware.Auth] token validation failed: %v", err)
				writeAuthError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the user when a valid token is present and lets
// anonymous requests through. A present but invalid token is rejected.
func OptionalAuth(authService TokenAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			Auth(authService)(next).ServeHTTP(w, r)
		})
	}
}

// RequireAdmin must run after Auth.
func RequireAdmin(profileService *service.ProfileService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserID(r.Context())
			if !ok {
				writeAuthError(w, domain.ErrUnauthenticated)
				return
			}

			isAdmin, err := profileService.IsAdmin(r.Context(), userID)
			if err != nil {
				log.Printf("ERROR [middleware.RequireAdmin] role lookup for %s: %v", userID, err)
				writeErrorBody(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
				return
			}
			if !isAdmin {
				writeErrorBody(w, http.StatusForbidden, "forbidden", "admin access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

func writeAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrSessionExpired) {
		writeErrorBody(w, http.StatusUnauthorized, "session_expired", "session expired")
		return
	}
	writeErrorBody(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
}

func writeErrorBody(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": message})
}

func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// OptionalUserID returns the authenticated user or nil for anonymous requests.
func OptionalUserID(ctx context.Context) *uuid.UUID {
	if userID, ok := GetUserID(ctx); ok {
		return &userID
	}
	return nil
}
