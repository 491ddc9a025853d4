package postgres

import (
	"context"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type profileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *profileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	return translate(r.db.WithContext(ctx).Create(profile).Error, "profile")
}

func (r *profileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	var profile domain.Profile
	if err := r.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error; err != nil {
		return nil, translate(err, "profile")
	}
	return &profile, nil
}

func (r *profileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	err := r.db.WithContext(ctx).
		Model(profile).
		Select("full_name", "phone", "location", "avatar_url", "date_of_birth", "updated_at").
		Updates(profile).Error
	return translate(err, "profile")
}

func (r *profileRepository) List(ctx context.Context) ([]*domain.Profile, error) {
	var profiles []*domain.Profile
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&profiles).Error
	if err != nil {
		return nil, translate(err, "profile")
	}
	return profiles, nil
}

func (r *profileRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Profile{}).Count(&count).Error
	return count, translate(err, "profile")
}
