package repository

import (
	"context"
	"time"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
)

// All repositories return domain.ErrNotFound for missing rows and
// domain.ErrConflict for unique violations.

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByVerificationToken(ctx context.Context, token string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *domain.UserSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UserSession, error)
	DeleteExpired(ctx context.Context, userID uuid.UUID, now time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}

type ProfileRepository interface {
	Create(ctx context.Context, profile *domain.Profile) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
	Update(ctx context.Context, profile *domain.Profile) error
	List(ctx context.Context) ([]*domain.Profile, error)
	Count(ctx context.Context) (int64, error)
}

type UserRoleRepository interface {
	// Add fails with domain.ErrConflict if the user already holds role.
	Add(ctx context.Context, userID uuid.UUID, role domain.Role) error
	Remove(ctx context.Context, userID uuid.UUID, role domain.Role) error
	HasRole(ctx context.Context, userID uuid.UUID, role domain.Role) (bool, error)
	ListByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]*domain.UserRole, error)
}

type CarRepository interface {
	Create(ctx context.Context, car *domain.Car) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Car, error)
	List(ctx context.Context, filter domain.CarFilter) ([]*domain.Car, error)
	// UpdateStatus sets status only if the row still has status from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.CarStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context, status *domain.CarStatus) (int64, error)
}

type FavoriteRepository interface {
	// Create fails with domain.ErrConflict if (user, car) already exists.
	Create(ctx context.Context, favorite *domain.Favorite) error
	// Delete reports whether a row was removed.
	Delete(ctx context.Context, userID, carID uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Favorite, error)
	Exists(ctx context.Context, userID, carID uuid.UUID) (bool, error)
}

type ConversationRepository interface {
	// Create fails with domain.ErrConflict if the participant triple exists.
	Create(ctx context.Context, conversation *domain.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	FindByParticipants(ctx context.Context, buyerID, sellerID uuid.UUID, carID *uuid.UUID) (*domain.Conversation, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error)
	CountUnread(ctx context.Context, conversationID, readerID uuid.UUID) (int64, error)
	// MarkRead sets read_at on messages not sent by readerID that are still unread.
	MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, at time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type Repositories struct {
	User         UserRepository
	Session      SessionRepository
	Profile      ProfileRepository
	UserRole     UserRoleRepository
	Car          CarRepository
	Favorite     FavoriteRepository
	Conversation ConversationRepository
	Message      MessageRepository
}
