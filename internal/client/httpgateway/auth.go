package httpgateway

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/dom/car-marketplace/internal/client"
	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
)

type authUser struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

type authResponse struct {
	User         authUser  `json:"user"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (r *authResponse) identity() *client.Identity {
	return &client.Identity{
		UserID:       r.User.ID,
		Email:        r.User.Email,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt,
	}
}

type signUpResponse struct {
	User                 authUser      `json:"user"`
	VerificationRequired bool          `json:"verificationRequired"`
	Session              *authResponse `json:"session"`
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	domain.ProfileFields
}

func (g *Gateway) SignIn(ctx context.Context, email, password string) (*client.Identity, error) {
	var resp authResponse
	err := g.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/signin",
		body:   map[string]string{"email": email, "password": password},
	}, &resp)
	if err != nil {
		return nil, err
	}

	id := resp.identity()
	if err := g.setIdentity(id); err != nil {
		log.Printf("ERROR [httpgateway.SignIn] save tokens: %v", err)
	}
	cp := *id
	return &cp, nil
}

func (g *Gateway) SignUp(ctx context.Context, email, password string, fields domain.ProfileFields) (*client.SignUpOutcome, error) {
	var resp signUpResponse
	err := g.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/signup",
		body:   signUpRequest{Email: email, Password: password, ProfileFields: fields},
	}, &resp)
	if err != nil {
		return nil, err
	}

	outcome := &client.SignUpOutcome{UserID: resp.User.ID, VerificationRequired: resp.VerificationRequired}
	if resp.Session != nil {
		id := resp.Session.identity()
		if err := g.setIdentity(id); err != nil {
			log.Printf("ERROR [httpgateway.SignUp] save tokens: %v", err)
		}
		cp := *id
		outcome.Identity = &cp
	}
	return outcome, nil
}

func (g *Gateway) VerifyEmail(ctx context.Context, token string) error {
	return g.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/verify",
		body:   map[string]string{"token": token},
	}, nil)
}

// SignOut invalidates the session on the backend and forgets it locally.
// The local copy is dropped even when the backend call fails.
func (g *Gateway) SignOut(ctx context.Context) error {
	if g.current() == nil {
		return nil
	}
	err := g.post(ctx, "/auth/signout", nil, nil)
	g.socket.close()
	if clearErr := g.setIdentity(nil); clearErr != nil {
		log.Printf("ERROR [httpgateway.SignOut] clear tokens: %v", clearErr)
	}
	if err != nil && domain.IsAuthError(err) {
		return nil
	}
	return err
}

// Restore loads the persisted session and checks it against the backend,
// refreshing an expired access token. A session the backend refuses is
// cleared and reported as no session.
func (g *Gateway) Restore(ctx context.Context) (*client.Identity, error) {
	stored, err := g.tokens.Load()
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}

	g.mu.Lock()
	g.identity = stored
	g.mu.Unlock()

	var me struct {
		User authUser `json:"user"`
	}
	if err := g.get(ctx, "/auth/me", &me); err != nil {
		if domain.IsAuthError(err) {
			if clearErr := g.setIdentity(nil); clearErr != nil {
				log.Printf("ERROR [httpgateway.Restore] clear tokens: %v", clearErr)
			}
			return nil, nil
		}
		g.mu.Lock()
		g.identity = nil
		g.mu.Unlock()
		return nil, err
	}

	id, _ := g.Identity()
	return id, nil
}
