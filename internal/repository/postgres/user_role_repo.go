package postgres

import (
	"context"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type userRoleRepository struct {
	db *gorm.DB
}

func NewUserRoleRepository(db *gorm.DB) *userRoleRepository {
	return &userRoleRepository{db: db}
}

func (r *userRoleRepository) Add(ctx context.Context, userID uuid.UUID, role domain.Role) error {
	row := &domain.UserRole{
		ID:     uuid.New(),
		UserID: userID,
		Role:   role,
	}
	return translate(r.db.WithContext(ctx).Create(row).Error, "role")
}

func (r *userRoleRepository) Remove(ctx context.Context, userID uuid.UUID, role domain.Role) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND role = ?", userID, role).
		Delete(&domain.UserRole{}).Error
}

func (r *userRoleRepository) HasRole(ctx context.Context, userID uuid.UUID, role domain.Role) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.UserRole{}).
		Where("user_id = ? AND role = ?", userID, role).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *userRoleRepository) ListByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]*domain.UserRole, error) {
	var roles []*domain.UserRole
	if len(userIDs) == 0 {
		return roles, nil
	}
	err := r.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("user_id, role").
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}
