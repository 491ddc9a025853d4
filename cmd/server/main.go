package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dom/car-marketplace/internal/api"
	"github.com/dom/car-marketplace/internal/config"
	"github.com/dom/car-marketplace/internal/repository/postgres"
	"github.com/dom/car-marketplace/internal/service"
	"github.com/dom/car-marketplace/internal/storage"
	"github.com/dom/car-marketplace/internal/websocket"
	"gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logLevel := logger.Warn
	if cfg.Environment == "development" {
		logLevel = logger.Info
	}

	// Initialize database
	db, err := postgres.NewConnection(cfg.DatabaseURL, logLevel)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Initialize repositories
	repos := postgres.NewRepositories(db)

	// Initialize object storage
	store, err := storage.New(cfg.Storage, cfg.PublicBaseURL)
	if err != nil {
		log.Fatalf("failed to initialize %s storage: %v", cfg.Storage.Backend, err)
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub(service.NewSubscriptionAuthorizer(repos.Conversation))
	go hub.Run()

	// Initialize services
	services := service.NewServices(repos, store, hub, cfg)

	// Initialize router
	router := api.NewRouter(services, hub, store, cfg)

	// Create server
	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on port %s (storage: %s)", cfg.Port, cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	hub.Stop()

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	log.Println("Server stopped")
}
