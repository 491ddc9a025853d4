package service

import (
	"context"
	"time"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/repository"
	"github.com/google/uuid"
)

type ProfileService struct {
	profileRepo repository.ProfileRepository
	roleRepo    repository.UserRoleRepository
}

func NewProfileService(profileRepo repository.ProfileRepository, roleRepo repository.UserRoleRepository) *ProfileService {
	return &ProfileService{
		profileRepo: profileRepo,
		roleRepo:    roleRepo,
	}
}

// Get returns the user's profile with IsAdmin resolved from their roles.
func (s *ProfileService) Get(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	isAdmin, err := s.IsAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile.IsAdmin = isAdmin
	return profile, nil
}

func (s *ProfileService) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.roleRepo.HasRole(ctx, userID, domain.RoleAdmin)
}

// Update replaces the editable fields of the caller's profile.
func (s *ProfileService) Update(ctx context.Context, userID uuid.UUID, fields domain.ProfileFields) (*domain.Profile, error) {
	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields.Apply(profile)
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	profile.UpdatedAt = time.Now()

	if err := s.profileRepo.Update(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}
