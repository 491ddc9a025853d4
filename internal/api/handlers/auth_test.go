package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/dom/car-marketplace/internal/api/handlers"
	"github.com/dom/car-marketplace/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthHandler_SignUp(t *testing.T) {
	ts := testutil.NewTestServer(t)

	tests := []struct {
		name           string
		request        map[string]string
		setup          func()
		expectedStatus int
		expectedKind   string
		checkResponse  func(*testing.T, *http.Response)
	}{
		{
			name: "successful sign up",
			request: map[string]string{
				"email":    "new@example.com",
				"password": "password123",
				"fullName": "New Seller",
			},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, resp *http.Response) {
				var result handlers.SignUpResponse
				testutil.AssertJSONResponse(t, resp, &result)
				assert.Equal(t, "new@example.com", result.User.Email)
				assert.Equal(t, "New Seller", result.Profile.FullName)
				require.NotNil(t, result.Session)
				assert.NotEmpty(t, result.Session.AccessToken)
				assert.False(t, result.VerificationRequired)
			},
		},
		{
			name: "admin email is granted the admin role",
			request: map[string]string{
				"email":    "admin@example.com",
				"password": "password123",
				"fullName": "Site Admin",
			},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, resp *http.Response) {
				var result handlers.SignUpResponse
				testutil.AssertJSONResponse(t, resp, &result)
				assert.True(t, result.Profile.IsAdmin)
			},
		},
		{
			name: "short password",
			request: map[string]string{
				"email":    "short@example.com",
				"password": "12345",
				"fullName": "Short",
			},
			expectedStatus: http.StatusBadRequest,
			expectedKind:   handlers.KindValidation,
		},
		{
			name: "missing full name",
			request: map[string]string{
				"email":    "noname@example.com",
				"password": "password123",
			},
			expectedStatus: http.StatusBadRequest,
			expectedKind:   handlers.KindValidation,
		},
		{
			name: "duplicate email",
			request: map[string]string{
				"email":    "existing@example.com",
				"password": "password123",
				"fullName": "Again",
			},
			setup: func() {
				testutil.NewUserBuilder().
					WithEmail("existing@example.com").
					Build(t, ts.DB.DB)
			},
			expectedStatus: http.StatusConflict,
			expectedKind:   handlers.KindConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts.DB.Truncate(t)

			if tt.setup != nil {
				tt.setup()
			}

			body, _ := json.Marshal(tt.request)
			resp, err := http.Post(ts.APIURL("/auth/signup"), "application/json", bytes.NewBuffer(body))
			require.NoError(t, err)
			defer resp.Body.Close()

			if tt.expectedKind != "" {
				testutil.AssertErrorResponse(t, resp, tt.expectedStatus, tt.expectedKind)
				return
			}

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.checkResponse != nil {
				tt.checkResponse(t, resp)
			}
		})
	}
}

func TestAuthHandler_SignIn(t *testing.T) {
	ts := testutil.NewTestServer(t)

	user, rawPassword := testutil.NewUserBuilder().
		WithEmail("login@example.com").
		WithPassword("correctpassword").
		Build(t, ts.DB.DB)
	testutil.NewUserBuilder().
		WithEmail("pending@example.com").
		WithPassword("correctpassword").
		Unverified().
		Build(t, ts.DB.DB)

	tests := []struct {
		name           string
		request        map[string]string
		expectedStatus int
		expectedKind   string
	}{
		{
			name: "successful sign in",
			request: map[string]string{
				"email":    user.Email,
				"password": rawPassword,
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "email is case insensitive",
			request: map[string]string{
				"email":    "LOGIN@example.com",
				"password": rawPassword,
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "invalid password",
			request: map[string]string{
				"email":    user.Email,
				"password": "wrongpassword",
			},
			expectedStatus: http.StatusUnauthorized,
			expectedKind:   handlers.KindInvalidCredentials,
		},
		{
			name: "non-existent user",
			request: map[string]string{
				"email":    "nobody@example.com",
				"password": "anypassword",
			},
			expectedStatus: http.StatusUnauthorized,
			expectedKind:   handlers.KindInvalidCredentials,
		},
		{
			name: "unverified account",
			request: map[string]string{
				"email":    "pending@example.com",
				"password": "correctpassword",
			},
			expectedStatus: http.StatusForbidden,
			expectedKind:   handlers.KindUnverifiedAccount,
		},
		{
			name: "missing password",
			request: map[string]string{
				"email": user.Email,
			},
			expectedStatus: http.StatusBadRequest,
			expectedKind:   handlers.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.request)
			resp, err := http.Post(ts.APIURL("/auth/signin"), "application/json", bytes.NewBuffer(body))
			require.NoError(t, err)
			defer resp.Body.Close()

			if tt.expectedKind != "" {
				testutil.AssertErrorResponse(t, resp, tt.expectedStatus, tt.expectedKind)
				return
			}

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			var result testutil.AuthResponse
			testutil.AssertJSONResponse(t, resp, &result)
			assert.Equal(t, user.ID.String(), result.User.ID)
			assert.NotEmpty(t, result.AccessToken)
			assert.NotEmpty(t, result.RefreshToken)
		})
	}
}

func TestAuthHandler_Refresh(t *testing.T) {
	ts := testutil.NewTestServer(t)

	user, password := testutil.NewUserBuilder().Build(t, ts.DB.DB)
	body, _ := json.Marshal(map[string]string{"email": user.Email, "password": password})
	resp, err := http.Post(ts.APIURL("/auth/signin"), "application/json", bytes.NewBuffer(body))
	require.NoError(t, err)
	var first testutil.AuthResponse
	testutil.AssertJSONResponse(t, resp, &first)
	resp.Body.Close()

	refresh := func(token string) *http.Response {
		body, _ := json.Marshal(map[string]string{"refreshToken": token})
		resp, err := http.Post(ts.APIURL("/auth/refresh"), "application/json", bytes.NewBuffer(body))
		require.NoError(t, err)
		return resp
	}

	resp = refresh(first.RefreshToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second testutil.AuthResponse
	testutil.AssertJSONResponse(t, resp, &second)
	resp.Body.Close()
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The rotated token is no longer accepted.
	resp = refresh(first.RefreshToken)
	defer resp.Body.Close()
	testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, handlers.KindSessionExpired)
}

func TestAuthHandler_Me(t *testing.T) {
	ts := testutil.NewTestServer(t)

	user, token := testutil.NewUserBuilder().
		WithFullName("Me User").
		BuildAndAuthenticate(t, ts)

	tests := []struct {
		name           string
		token          string
		expectedStatus int
		checkResponse  func(*testing.T, *http.Response)
	}{
		{
			name:           "successful fetch with valid token",
			token:          token,
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, resp *http.Response) {
				var result handlers.MeResponse
				testutil.AssertJSONResponse(t, resp, &result)
				assert.Equal(t, user.ID, result.User.ID)
				assert.Equal(t, "Me User", result.Profile.FullName)
				assert.False(t, result.Profile.IsAdmin)
			},
		},
		{
			name:           "missing authorization header",
			token:          "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid token",
			token:          "invalid.token.here",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "malformed token",
			token:          "notajwt",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.CreateAuthenticatedRequest(t, "GET", ts.APIURL("/auth/me"), nil, tt.token)

			client := &http.Client{}
			resp, err := client.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.checkResponse != nil {
				tt.checkResponse(t, resp)
			}
		})
	}
}

func TestAuthHandler_SignOut(t *testing.T) {
	ts := testutil.NewTestServer(t)

	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	tests := []struct {
		name           string
		token          string
		expectedStatus int
	}{
		{
			name:           "successful sign out",
			token:          token,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unauthorized - no token",
			token:          "",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.CreateAuthenticatedRequest(t, "POST", ts.APIURL("/auth/signout"), nil, tt.token)

			client := &http.Client{}
			resp, err := client.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}
