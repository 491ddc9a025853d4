package httpgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dom/car-marketplace/internal/client"
	"github.com/dom/car-marketplace/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBody(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func TestDecodeError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    error
		message string
	}{
		{name: "validation keeps the field", status: 400, body: `{"error":"validation_error","message":"price must be positive","field":"price"}`, want: domain.ErrValidation, message: "price must be positive"},
		{name: "invalid credentials", status: 401, body: `{"error":"invalid_credentials","message":"Invalid email or password"}`, want: domain.ErrInvalidCredentials},
		{name: "unverified", status: 403, body: `{"error":"unverified_account","message":"Please verify your email"}`, want: domain.ErrUnverifiedAccount},
		{name: "conflict", status: 409, body: `{"error":"conflict","message":"already saved"}`, want: domain.ErrConflict},
		{name: "transition", status: 422, body: `{"error":"invalid_transition","message":"cannot move"}`, want: domain.ErrInvalidTransition},
		{name: "internal is transient", status: 500, body: `{"error":"internal_error","message":"An internal error occurred"}`, want: domain.ErrTransient},
		{name: "unknown kind is transient", status: 418, body: `{"error":"teapot"}`, want: domain.ErrTransient},
		{name: "non-json body", status: 502, body: `<html>bad gateway</html>`, want: domain.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			rec.WriteHeader(tt.status)
			rec.WriteString(tt.body)

			err := decodeError(rec.Result())

			assert.ErrorIs(t, err, tt.want)
			if tt.message != "" {
				assert.Equal(t, tt.message, domain.ErrorText(err))
			}
		})
	}

	rec := httptest.NewRecorder()
	rec.WriteHeader(400)
	rec.WriteString(`{"error":"validation_error","message":"bad","field":"price"}`)
	var appErr *domain.AppError
	require.ErrorAs(t, decodeError(rec.Result()), &appErr)
	assert.Equal(t, "price", appErr.Field)
}

// staleTokenServer accepts only the most recently issued access token.
type staleTokenServer struct {
	current   atomic.Value
	refreshes atomic.Int32
	refuse    atomic.Bool
}

func (s *staleTokenServer) handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		s.refreshes.Add(1)
		if s.refuse.Load() {
			writeBody(w, http.StatusUnauthorized, errorBody{Error: "session_expired", Message: "session expired"})
			return
		}
		token := "access-" + uuid.NewString()
		s.current.Store(token)
		writeBody(w, http.StatusOK, authResponse{
			User:         authUser{ID: uuid.New(), Email: "ada@example.com"},
			AccessToken:  token,
			RefreshToken: "refresh-" + uuid.NewString(),
			ExpiresAt:    time.Now().Add(time.Hour),
		})
	})
	r.Get("/api/v1/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.current.Load().(string) {
			writeBody(w, http.StatusUnauthorized, errorBody{Error: "session_expired", Message: "session expired"})
			return
		}
		writeBody(w, http.StatusOK, domain.Profile{FullName: "Ada"})
	})
	return r
}

func TestGateway_RefreshesOnSessionExpired(t *testing.T) {
	fake := &staleTokenServer{}
	fake.current.Store("fresh")
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	tokens := &MemoryTokens{}
	g := New(srv.URL, tokens)
	require.NoError(t, g.setIdentity(&client.Identity{
		UserID: uuid.New(), AccessToken: "stale", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour),
	}))

	profile, err := g.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ada", profile.FullName)
	assert.Equal(t, int32(1), fake.refreshes.Load())

	stored, err := tokens.Load()
	require.NoError(t, err)
	assert.Equal(t, fake.current.Load(), stored.AccessToken, "the new pair is persisted")

	ev := <-g.SessionChanges()
	assert.Equal(t, client.SessionRefreshed, ev.Kind)
}

func TestGateway_RefusedRefreshExpiresSession(t *testing.T) {
	fake := &staleTokenServer{}
	fake.current.Store("fresh")
	fake.refuse.Store(true)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	g := New(srv.URL, nil)
	require.NoError(t, g.setIdentity(&client.Identity{UserID: uuid.New(), AccessToken: "stale", RefreshToken: "r"}))

	_, err := g.GetProfile(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	_, ok := g.Identity()
	assert.False(t, ok)
	ev := <-g.SessionChanges()
	assert.Equal(t, client.SessionExpired, ev.Kind)

	_, err = g.GetProfile(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Equal(t, int32(1), fake.refreshes.Load(), "no refresh without a session")
}

func TestGateway_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, nil).ListCars(context.Background(), client.CarQuery{})
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestFileTokens(t *testing.T) {
	tokens := FileTokens{Path: filepath.Join(t.TempDir(), "nested", "session.json")}

	loaded, err := tokens.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded, "missing file means no session")

	id := &client.Identity{UserID: uuid.New(), Email: "ada@example.com", AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Round(time.Second)}
	require.NoError(t, tokens.Save(id))

	loaded, err = tokens.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, id.UserID, loaded.UserID)
	assert.True(t, id.ExpiresAt.Equal(loaded.ExpiresAt))

	require.NoError(t, tokens.Clear())
	require.NoError(t, tokens.Clear(), "clearing twice is fine")
	loaded, err = tokens.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
