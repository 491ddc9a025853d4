package service

import (
	"context"
	"time"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/repository"
	"github.com/google/uuid"
)

type FavoriteService struct {
	favoriteRepo repository.FavoriteRepository
	cars         *CarService
}

func NewFavoriteService(favoriteRepo repository.FavoriteRepository, cars *CarService) *FavoriteService {
	return &FavoriteService{
		favoriteRepo: favoriteRepo,
		cars:         cars,
	}
}

// List returns userID's favorites newest first, each with its car joined.
func (s *FavoriteService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Favorite, error) {
	return s.favoriteRepo.ListByUser(ctx, userID)
}

// Add saves carID for userID. A duplicate is reported as domain.ErrConflict.
func (s *FavoriteService) Add(ctx context.Context, userID, carID uuid.UUID) (*domain.Favorite, error) {
	if _, err := s.cars.Get(ctx, &userID, carID); err != nil {
		return nil, err
	}

	favorite := &domain.Favorite{
		ID:        uuid.New(),
		UserID:    userID,
		CarID:     carID,
		CreatedAt: time.Now(),
	}
	if err := s.favoriteRepo.Create(ctx, favorite); err != nil {
		return nil, err
	}
	return favorite, nil
}

// Remove deletes the favorite if present. Removing a missing favorite succeeds.
func (s *FavoriteService) Remove(ctx context.Context, userID, carID uuid.UUID) error {
	_, err := s.favoriteRepo.Delete(ctx, userID, carID)
	return err
}
