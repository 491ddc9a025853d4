package postgres

import (
	"context"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type favoriteRepository struct {
	db *gorm.DB
}

func NewFavoriteRepository(db *gorm.DB) *favoriteRepository {
	return &favoriteRepository{db: db}
}

func (r *favoriteRepository) Create(ctx context.Context, favorite *domain.Favorite) error {
	return translate(r.db.WithContext(ctx).Omit("Car").Create(favorite).Error, "favorite")
}

func (r *favoriteRepository) Delete(ctx context.Context, userID, carID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND car_id = ?", userID, carID).
		Delete(&domain.Favorite{})
	if res.Error != nil {
		return false, translate(res.Error, "favorite")
	}
	return res.RowsAffected > 0, nil
}

func (r *favoriteRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Favorite, error) {
	var favorites []*domain.Favorite
	err := r.db.WithContext(ctx).
		Preload("Car").
		Preload("Car.Owner").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&favorites).Error
	if err != nil {
		return nil, translate(err, "favorite")
	}
	return favorites, nil
}

func (r *favoriteRepository) Exists(ctx context.Context, userID, carID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Favorite{}).
		Where("user_id = ? AND car_id = ?", userID, carID).
		Count(&count).Error
	if err != nil {
		return false, translate(err, "favorite")
	}
	return count > 0, nil
}
