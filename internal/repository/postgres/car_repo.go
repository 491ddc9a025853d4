package postgres

import (
	"context"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type carRepository struct {
	db *gorm.DB
}

func NewCarRepository(db *gorm.DB) *carRepository {
	return &carRepository{db: db}
}

func (r *carRepository) Create(ctx context.Context, car *domain.Car) error {
	return translate(r.db.WithContext(ctx).Create(car).Error, "car")
}

func (r *carRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Car, error) {
	var car domain.Car
	err := r.db.WithContext(ctx).
		Preload("Owner").
		First(&car, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "car")
	}
	return &car, nil
}

func (r *carRepository) List(ctx context.Context, filter domain.CarFilter) ([]*domain.Car, error) {
	q := r.db.WithContext(ctx).Preload("Owner")

	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.OwnerID != nil {
		q = q.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.Brand != "" {
		q = q.Where("brand = ?", filter.Brand)
	}
	if filter.Location != "" {
		q = q.Where("location = ?", filter.Location)
	}
	if filter.FuelType != "" {
		q = q.Where("fuel_type = ?", filter.FuelType)
	}
	if filter.MinPrice != nil {
		q = q.Where("price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		q = q.Where("price <= ?", *filter.MaxPrice)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var cars []*domain.Car
	if err := q.Order("created_at DESC").Find(&cars).Error; err != nil {
		return nil, translate(err, "car")
	}
	return cars, nil
}

func (r *carRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.CarStatus) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Car{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return translate(res.Error, "car")
	}
	if res.RowsAffected == 0 {
		// Either gone or moved on concurrently.
		return domain.Conflict("car", "status changed concurrently")
	}
	return nil
}

func (r *carRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&domain.Car{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, "car")
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("car", id.String())
	}
	return nil
}

func (r *carRepository) Count(ctx context.Context, status *domain.CarStatus) (int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.Car{})
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var count int64
	err := q.Count(&count).Error
	return count, translate(err, "car")
}
