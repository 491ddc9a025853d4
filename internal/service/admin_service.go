package service

import (
	"context"
	"errors"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/repository"
	"github.com/google/uuid"
)

const recentPendingLimit = 5

type AdminService struct {
	carRepo     repository.CarRepository
	profileRepo repository.ProfileRepository
	roleRepo    repository.UserRoleRepository
	messageRepo repository.MessageRepository
}

func NewAdminService(
	carRepo repository.CarRepository,
	profileRepo repository.ProfileRepository,
	roleRepo repository.UserRoleRepository,
	messageRepo repository.MessageRepository,
) *AdminService {
	return &AdminService{
		carRepo:     carRepo,
		profileRepo: profileRepo,
		roleRepo:    roleRepo,
		messageRepo: messageRepo,
	}
}

func (s *AdminService) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	stats := &domain.DashboardStats{}
	var err error

	if stats.TotalCars, err = s.carRepo.Count(ctx, nil); err != nil {
		return nil, err
	}
	pending := domain.CarStatusPending
	if stats.PendingCars, err = s.carRepo.Count(ctx, &pending); err != nil {
		return nil, err
	}
	if stats.TotalUsers, err = s.profileRepo.Count(ctx); err != nil {
		return nil, err
	}
	if stats.TotalMessages, err = s.messageRepo.Count(ctx); err != nil {
		return nil, err
	}
	if stats.RecentPending, err = s.carRepo.List(ctx, domain.CarFilter{Status: &pending, Limit: recentPendingLimit}); err != nil {
		return nil, err
	}
	return stats, nil
}

// ListCars returns every listing, optionally narrowed to one status.
func (s *AdminService) ListCars(ctx context.Context, status *domain.CarStatus) ([]*domain.Car, error) {
	if status != nil && !status.IsValid() {
		return nil, domain.ValidationFailed("status", "unknown status "+string(*status))
	}
	return s.carRepo.List(ctx, domain.CarFilter{Status: status})
}

// ListUsers returns every profile with its effective role.
func (s *AdminService) ListUsers(ctx context.Context) ([]*domain.UserWithRole, error) {
	profiles, err := s.profileRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.UserID)
	}
	roles, err := s.roleRepo.ListByUserIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byUser := make(map[uuid.UUID][]*domain.UserRole)
	for _, r := range roles {
		byUser[r.UserID] = append(byUser[r.UserID], r)
	}

	users := make([]*domain.UserWithRole, 0, len(profiles))
	for _, p := range profiles {
		role := domain.HighestRole(byUser[p.UserID])
		p.IsAdmin = role == domain.RoleAdmin
		users = append(users, &domain.UserWithRole{Profile: p, Role: role})
	}
	return users, nil
}

func (s *AdminService) GrantAdmin(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.profileRepo.GetByUserID(ctx, userID); err != nil {
		return err
	}
	if err := s.roleRepo.Add(ctx, userID, domain.RoleAdmin); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.Conflict("role", "user is already an admin")
		}
		return err
	}
	return nil
}

func (s *AdminService) RevokeAdmin(ctx context.Context, actorID, userID uuid.UUID) error {
	if actorID == userID {
		return domain.ValidationFailed("userId", "you cannot remove your own admin role")
	}
	return s.roleRepo.Remove(ctx, userID, domain.RoleAdmin)
}
