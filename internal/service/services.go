package service

import (
	"github.com/dom/car-marketplace/internal/config"
	"github.com/dom/car-marketplace/internal/repository"
	"github.com/dom/car-marketplace/internal/storage"
	"github.com/dom/car-marketplace/internal/websocket"
)

type Services struct {
	Auth         *AuthService
	Profile      *ProfileService
	Car          *CarService
	Favorite     *FavoriteService
	Conversation *ConversationService
	Message      *MessageService
	Upload       *UploadService
	Admin        *AdminService
}

func NewServices(repos *repository.Repositories, store storage.ObjectStore, publisher websocket.Publisher, cfg *config.Config) *Services {
	if publisher == nil {
		publisher = websocket.NopPublisher{}
	}

	cars := NewCarService(repos.Car, repos.UserRole, store, cfg.Storage.Bucket)
	conversations := NewConversationService(repos.Conversation, repos.Message, repos.Car, publisher)

	return &Services{
		Auth:         NewAuthService(repos.User, repos.Session, repos.Profile, repos.UserRole, LogMailer{BaseURL: cfg.PublicBaseURL}, cfg),
		Profile:      NewProfileService(repos.Profile, repos.UserRole),
		Car:          cars,
		Favorite:     NewFavoriteService(repos.Favorite, cars),
		Conversation: conversations,
		Message:      NewMessageService(repos.Message, conversations, publisher),
		Upload:       NewUploadService(store, cfg.Storage),
		Admin:        NewAdminService(repos.Car, repos.Profile, repos.UserRole, repos.Message),
	}
}
