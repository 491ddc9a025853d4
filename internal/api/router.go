package api

import (
	"net/http"

	"github.com/dom/car-marketplace/internal/api/handlers"
	"github.com/dom/car-marketplace/internal/api/middleware"
	"github.com/dom/car-marketplace/internal/config"
	"github.com/dom/car-marketplace/internal/service"
	"github.com/dom/car-marketplace/internal/storage"
	"github.com/dom/car-marketplace/internal/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(services *service.Services, hub *websocket.Hub, store storage.ObjectStore, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.CORS)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Objects written by the local backend are served read-only
	if local, ok := store.(*storage.LocalStore); ok {
		r.Handle("/storage/"+cfg.Storage.Bucket+"/*", local.Handler())
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(services.Auth, services.Profile)
	profileHandler := handlers.NewProfileHandler(services.Profile)
	carHandler := handlers.NewCarHandler(services.Car)
	favoriteHandler := handlers.NewFavoriteHandler(services.Favorite)
	conversationHandler := handlers.NewConversationHandler(services.Conversation, services.Message)
	storageHandler := handlers.NewStorageHandler(services.Upload, cfg.Storage.MaxUploadBytes)
	adminHandler := handlers.NewAdminHandler(services.Admin)
	wsHandler := handlers.NewWebSocketHandler(hub, services.Auth)

	requireAuth := middleware.Auth(services.Auth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth routes
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.SignUp)
			r.Post("/signin", authHandler.SignIn)
			r.Post("/verify", authHandler.Verify)
			r.Post("/refresh", authHandler.Refresh)

			// Protected auth routes
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", authHandler.Me)
				r.Post("/signout", authHandler.SignOut)
			})
		})

		// Catalogue, visible to anonymous visitors
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(services.Auth))
			r.Get("/cars", carHandler.List)
			r.Get("/cars/{id}", carHandler.Get)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Route("/profile", func(r chi.Router) {
				r.Get("/", profileHandler.GetProfile)
				r.Put("/", profileHandler.UpdateProfile)
			})

			r.Post("/cars", carHandler.Create)
			r.Patch("/cars/{id}/status", carHandler.ChangeStatus)
			r.Delete("/cars/{id}", carHandler.Delete)
			r.Get("/me/cars", carHandler.Mine)

			r.Route("/favorites", func(r chi.Router) {
				r.Get("/", favoriteHandler.List)
				r.Post("/", favoriteHandler.Add)
				r.Delete("/{carId}", favoriteHandler.Remove)
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", conversationHandler.List)
				r.Post("/", conversationHandler.Start)
				r.Get("/lookup", conversationHandler.Lookup)
				r.Get("/{id}", conversationHandler.Get)
				r.Get("/{id}/unread-count", conversationHandler.UnreadCount)
				r.Post("/{id}/touch", conversationHandler.Touch)
				r.Get("/{id}/messages", conversationHandler.Messages)
				r.Post("/{id}/messages", conversationHandler.Send)
				r.Post("/{id}/read", conversationHandler.MarkRead)
			})

			r.Route("/storage/{bucket}", func(r chi.Router) {
				r.Put("/*", storageHandler.Upload)
				r.Delete("/*", storageHandler.Delete)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin(services.Profile))
				r.Get("/stats", adminHandler.Stats)
				r.Get("/cars", adminHandler.Cars)
				r.Get("/users", adminHandler.Users)
				r.Post("/users/{id}/admin", adminHandler.GrantAdmin)
				r.Delete("/users/{id}/admin", adminHandler.RevokeAdmin)
			})
		})

		// WebSocket endpoint
		r.Get("/ws", wsHandler.Handle)
	})

	return r
}
