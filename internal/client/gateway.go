// Package client is the marketplace's data access and sync layer: the
// session store, read models over remote collections, mutation operations
// and the navigation guard. It talks to the backend only through the
// Gateway interfaces below and reasons only about domain errors.
package client

import (
	"context"
	"io"
	"time"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/websocket"
	"github.com/google/uuid"
)

// Identity is an authenticated session as held by the client.
type Identity struct {
	UserID       uuid.UUID `json:"userId"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// SignUpOutcome is the result of creating an account. Identity is nil when
// the account must be verified before it can sign in.
type SignUpOutcome struct {
	UserID               uuid.UUID
	VerificationRequired bool
	Identity             *Identity
}

type SessionEventKind int

const (
	// SessionExpired means the backend no longer accepts the session.
	SessionExpired SessionEventKind = iota
	// SessionRefreshed means the tokens were rotated.
	SessionRefreshed
)

// SessionEvent is an asynchronous session-change notification.
type SessionEvent struct {
	Kind     SessionEventKind
	Identity *Identity
}

type AuthGateway interface {
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignUp(ctx context.Context, email, password string, fields domain.ProfileFields) (*SignUpOutcome, error)
	VerifyEmail(ctx context.Context, token string) error
	SignOut(ctx context.Context) error
	// Restore returns the persisted session, or nil when there is none.
	Restore(ctx context.Context) (*Identity, error)
	SessionChanges() <-chan SessionEvent
}

type ProfileGateway interface {
	GetProfile(ctx context.Context) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, fields domain.ProfileFields) (*domain.Profile, error)
}

// CarQuery is the predicate list sent to the backend. Nil and empty
// fields are not applied.
type CarQuery struct {
	Brand    string
	Location string
	FuelType string
	MinPrice *int64
	MaxPrice *int64
}

type NewCar struct {
	Name         string              `json:"name"`
	Brand        string              `json:"brand"`
	Model        *string             `json:"model,omitempty"`
	Price        int64               `json:"price"`
	Year         int                 `json:"year"`
	Mileage      int                 `json:"mileage"`
	FuelType     domain.FuelType     `json:"fuelType"`
	Transmission domain.Transmission `json:"transmission"`
	Location     string              `json:"location"`
	Description  *string             `json:"description,omitempty"`
	Images       []string            `json:"images"`
}

type CarGateway interface {
	ListCars(ctx context.Context, q CarQuery) ([]*domain.Car, error)
	ListMyCars(ctx context.Context) ([]*domain.Car, error)
	GetCar(ctx context.Context, id uuid.UUID) (*domain.Car, error)
	CreateCar(ctx context.Context, car NewCar) (*domain.Car, error)
	SetCarStatus(ctx context.Context, id uuid.UUID, status domain.CarStatus) (*domain.Car, error)
	DeleteCar(ctx context.Context, id uuid.UUID) error
}

type FavoriteGateway interface {
	ListFavorites(ctx context.Context) ([]*domain.Favorite, error)
	// AddFavorite fails with domain.ErrConflict when the car is already a favorite.
	AddFavorite(ctx context.Context, carID uuid.UUID) error
	RemoveFavorite(ctx context.Context, carID uuid.UUID) error
}

type ConversationGateway interface {
	ListConversations(ctx context.Context) ([]*domain.Conversation, error)
	// FindConversation looks up the caller's conversation with the seller
	// about the car, failing with domain.ErrNotFound on a miss.
	FindConversation(ctx context.Context, sellerID uuid.UUID, carID *uuid.UUID) (*domain.Conversation, error)
	CreateConversation(ctx context.Context, sellerID uuid.UUID, carID *uuid.UUID) (*domain.Conversation, error)
	CountUnread(ctx context.Context, conversationID uuid.UUID) (int64, error)
	TouchConversation(ctx context.Context, conversationID uuid.UUID) error
}

type MessageGateway interface {
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error)
	SendMessage(ctx context.Context, conversationID uuid.UUID, content string) (*domain.Message, error)
	MarkRead(ctx context.Context, conversationID uuid.UUID) (int64, error)
}

type ObjectGateway interface {
	// Upload stores body under path in the image bucket and returns its public URL.
	Upload(ctx context.Context, path, contentType string, size int64, body io.Reader) (string, error)
	Delete(ctx context.Context, path string) error
}

// Subscription is a live change stream. Close stops delivery and must be
// called by the owner.
type Subscription interface {
	Events() <-chan websocket.ChangeEvent
	Close() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, topic websocket.Topic) (Subscription, error)
}

type AdminGateway interface {
	Stats(ctx context.Context) (*domain.DashboardStats, error)
	// ListAllCars lists cars in any status; a nil status lists every car.
	ListAllCars(ctx context.Context, status *domain.CarStatus) ([]*domain.Car, error)
	ListUsers(ctx context.Context) ([]*domain.UserWithRole, error)
	GrantAdmin(ctx context.Context, userID uuid.UUID) error
	RevokeAdmin(ctx context.Context, userID uuid.UUID) error
}

// Gateway is the full backend surface.
type Gateway interface {
	AuthGateway
	ProfileGateway
	CarGateway
	FavoriteGateway
	ConversationGateway
	MessageGateway
	ObjectGateway
	Subscriber
	AdminGateway
}
