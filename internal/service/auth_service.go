package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/dom/car-marketplace/internal/config"
	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

type AuthService struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	profileRepo repository.ProfileRepository
	roleRepo    repository.UserRoleRepository
	mailer      Mailer
	cfg         *config.Config
}

func NewAuthService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	profileRepo repository.ProfileRepository,
	roleRepo repository.UserRoleRepository,
	mailer Mailer,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		profileRepo: profileRepo,
		roleRepo:    roleRepo,
		mailer:      mailer,
		cfg:         cfg,
	}
}

type SignUpInput struct {
	Email    string
	Password string
	Profile  domain.ProfileFields
}

type SignInInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// SignUpResult carries a session only when the account needs no email
// verification.
type SignUpResult struct {
	User                 *domain.User
	Profile              *domain.Profile
	VerificationRequired bool
	Session              *AuthResult
}

func (s *AuthService) SignUp(ctx context.Context, input SignUpInput) (*SignUpResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.ValidationFailed("email", "a valid email address is required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, domain.ValidationFailed("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	profile := &domain.Profile{ID: uuid.New(), Email: email}
	input.Profile.Apply(profile)
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if s.cfg.AutoVerifyEmail {
		user.EmailVerifiedAt = &now
	} else {
		token := uuid.New().String()
		user.VerificationToken = &token
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.Conflict("user", "an account with this email already exists")
		}
		return nil, err
	}

	profile.UserID = user.ID
	profile.CreatedAt = now
	profile.UpdatedAt = now
	if err := s.profileRepo.Create(ctx, profile); err != nil {
		return nil, err
	}

	if s.cfg.IsAdminEmail(email) {
		if err := s.roleRepo.Add(ctx, user.ID, domain.RoleAdmin); err != nil && !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		profile.IsAdmin = true
	}

	result := &SignUpResult{User: user, Profile: profile}
	if user.IsVerified() {
		session, err := s.generateTokens(ctx, user)
		if err != nil {
			return nil, err
		}
		result.Session = session
		return result, nil
	}

	result.VerificationRequired = true
	if err := s.mailer.SendVerification(ctx, email, *user.VerificationToken); err != nil {
		log.Printf("ERROR [service.Auth] send verification to %s: %v", email, err)
	}
	return result, nil
}

// VerifyEmail confirms the account holding token. Tokens are single-use.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ValidationFailed("token", "verification token is required")
	}
	user, err := s.userRepo.GetByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ValidationFailed("token", "invalid or already used verification token")
		}
		return nil, err
	}

	now := time.Now()
	user.EmailVerifiedAt = &now
	user.VerificationToken = nil
	user.UpdatedAt = now
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) SignIn(ctx context.Context, input SignInInput) (*AuthResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	if !user.IsVerified() {
		return nil, domain.ErrUnverifiedAccount
	}

	return s.generateTokens(ctx, user)
}

func (s *AuthService) generateTokens(ctx context.Context, user *domain.User) (*AuthResult, error) {
	accessToken, expiresAt, err := s.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	secret := uuid.New().String()
	hashedRefresh, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	// Each sign-in is its own session; stale ones are pruned here.
	if err := s.sessionRepo.DeleteExpired(ctx, user.ID, time.Now()); err != nil {
		log.Printf("WARN [service.Auth] prune sessions for %s: %v", user.ID, err)
	}

	session := &domain.UserSession{
		ID:               uuid.New(),
		UserID:           user.ID,
		RefreshTokenHash: string(hashedRefresh),
		ExpiresAt:        time.Now().Add(time.Duration(s.cfg.RefreshTokenDays) * 24 * time.Hour),
		CreatedAt:        time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	return &AuthResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: session.ID.String() + "." + secret,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *AuthService) generateAccessToken(user *domain.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(time.Duration(s.cfg.JWTExpirationHours) * time.Hour)
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"email": user.Email,
		"exp":   expiresAt.Unix(),
		"iat":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	return signed, expiresAt, err
}

func (s *AuthService) ValidateToken(tokenString string) (*jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.cfg.JWTSecret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return &claims, nil
	}

	return nil, domain.ErrUnauthenticated
}

// Authenticate validates an access token and returns its subject.
func (s *AuthService) Authenticate(tokenString string) (uuid.UUID, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	sub, ok := (*claims)["sub"].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: missing sub claim", domain.ErrUnauthenticated)
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid sub claim", domain.ErrUnauthenticated)
	}
	return userID, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// Refresh exchanges a refresh token for a new token pair. The old refresh
// token stops working.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	idPart, secret, ok := strings.Cut(refreshToken, ".")
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	sessionID, err := uuid.Parse(idPart)
	if err != nil {
		return nil, domain.ErrUnauthenticated
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSessionExpired
		}
		return nil, err
	}

	if session.Expired(time.Now()) {
		_ = s.sessionRepo.Delete(ctx, session.ID)
		return nil, domain.ErrSessionExpired
	}

	if err := bcrypt.CompareHashAndPassword([]byte(session.RefreshTokenHash), []byte(secret)); err != nil {
		return nil, domain.ErrUnauthenticated
	}

	// Rotation: the consumed session is gone before its successor exists.
	if err := s.sessionRepo.Delete(ctx, session.ID); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return s.generateTokens(ctx, user)
}

func (s *AuthService) SignOut(ctx context.Context, userID uuid.UUID) error {
	return s.sessionRepo.DeleteByUserID(ctx, userID)
}
