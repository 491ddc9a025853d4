package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/repository/postgres"
	"github.com/dom/car-marketplace/internal/service"
	"github.com/dom/car-marketplace/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (m *recordingMailer) SendVerification(ctx context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = make(map[string]string)
	}
	m.tokens[email] = token
	return nil
}

func newAuthService(t *testing.T, autoVerify bool) (*service.AuthService, *recordingMailer, *testutil.TestDB) {
	t.Helper()
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	cfg := testutil.TestConfig()
	cfg.AutoVerifyEmail = autoVerify
	mailer := &recordingMailer{}
	return service.NewAuthService(repos.User, repos.Session, repos.Profile, repos.UserRole, mailer, cfg), mailer, testDB
}

func TestAuthService_SignUp(t *testing.T) {
	authService, _, testDB := newAuthService(t, true)
	ctx := context.Background()

	tests := []struct {
		name    string
		input   service.SignUpInput
		setup   func()
		wantErr error
	}{
		{
			name: "successful sign up",
			input: service.SignUpInput{
				Email:    "new@example.com",
				Password: "password123",
				Profile:  domain.ProfileFields{FullName: "New Seller"},
			},
		},
		{
			name: "invalid email",
			input: service.SignUpInput{
				Email:    "not-an-email",
				Password: "password123",
				Profile:  domain.ProfileFields{FullName: "Someone"},
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "duplicate email",
			input: service.SignUpInput{
				Email:    "existing@example.com",
				Password: "password123",
				Profile:  domain.ProfileFields{FullName: "Again"},
			},
			setup: func() {
				testutil.NewUserBuilder().
					WithEmail("existing@example.com").
					Build(t, testDB.DB)
			},
			wantErr: domain.ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testDB.Truncate(t)

			if tt.setup != nil {
				tt.setup()
			}

			result, err := authService.SignUp(ctx, tt.input)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.input.Email, result.User.Email)
			assert.Equal(t, result.User.ID, result.Profile.UserID)
			require.NotNil(t, result.Session)
			assert.NotEmpty(t, result.Session.AccessToken)
		})
	}
}

func TestAuthService_VerificationFlow(t *testing.T) {
	authService, mailer, _ := newAuthService(t, false)
	ctx := context.Background()

	result, err := authService.SignUp(ctx, service.SignUpInput{
		Email:    "verify@example.com",
		Password: "password123",
		Profile:  domain.ProfileFields{FullName: "Verifier"},
	})
	require.NoError(t, err)
	assert.True(t, result.VerificationRequired)
	assert.Nil(t, result.Session)

	_, err = authService.SignIn(ctx, service.SignInInput{Email: "verify@example.com", Password: "password123"})
	assert.ErrorIs(t, err, domain.ErrUnverifiedAccount)

	token := mailer.tokens["verify@example.com"]
	require.NotEmpty(t, token)

	user, err := authService.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.True(t, user.IsVerified())

	_, err = authService.VerifyEmail(ctx, token)
	assert.ErrorIs(t, err, domain.ErrValidation, "tokens are single use")

	session, err := authService.SignIn(ctx, service.SignInInput{Email: "verify@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.User.ID)
}

func TestAuthService_SignIn(t *testing.T) {
	authService, _, testDB := newAuthService(t, true)
	ctx := context.Background()

	user, rawPassword := testutil.NewUserBuilder().
		WithEmail("login@example.com").
		WithPassword("correctpassword").
		Build(t, testDB.DB)

	tests := []struct {
		name    string
		input   service.SignInInput
		wantErr error
	}{
		{
			name:  "successful sign in",
			input: service.SignInInput{Email: user.Email, Password: rawPassword},
		},
		{
			name:    "wrong password",
			input:   service.SignInInput{Email: user.Email, Password: "wrongpassword"},
			wantErr: domain.ErrInvalidCredentials,
		},
		{
			name:    "non-existent user",
			input:   service.SignInInput{Email: "nobody@example.com", Password: "anypassword"},
			wantErr: domain.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := authService.SignIn(ctx, tt.input)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, user.ID, result.User.ID)
			assert.NotEmpty(t, result.AccessToken)
			assert.NotEmpty(t, result.RefreshToken)
		})
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	authService, _, testDB := newAuthService(t, true)
	ctx := context.Background()

	user, password := testutil.NewUserBuilder().Build(t, testDB.DB)
	result, err := authService.SignIn(ctx, service.SignInInput{Email: user.Email, Password: password})
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid token", token: result.AccessToken},
		{name: "invalid token", token: "invalid.token.here", wantErr: true},
		{name: "malformed token", token: "notavalidjwt", wantErr: true},
		{name: "empty token", token: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := authService.Authenticate(tt.token)

			if tt.wantErr {
				assert.True(t, domain.IsAuthError(err))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, user.ID, userID)
		})
	}
}

func TestAuthService_RefreshAndSignOut(t *testing.T) {
	authService, _, testDB := newAuthService(t, true)
	ctx := context.Background()

	user, password := testutil.NewUserBuilder().Build(t, testDB.DB)
	first, err := authService.SignIn(ctx, service.SignInInput{Email: user.Email, Password: password})
	require.NoError(t, err)

	second, err := authService.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, second.User.ID)

	_, err = authService.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	_, err = authService.Refresh(ctx, uuid.New().String()+".bogus")
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	_, err = authService.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	require.NoError(t, authService.SignOut(ctx, user.ID))
	_, err = authService.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	// Signing out twice is harmless.
	require.NoError(t, authService.SignOut(ctx, user.ID))
}

func TestAuthService_GetUserByID(t *testing.T) {
	authService, _, testDB := newAuthService(t, true)
	ctx := context.Background()

	user, _ := testutil.NewUserBuilder().Build(t, testDB.DB)

	got, err := authService.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	_, err = authService.GetUserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
