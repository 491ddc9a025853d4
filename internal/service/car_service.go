package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/repository"
	"github.com/dom/car-marketplace/internal/storage"
	"github.com/google/uuid"
)

type CarService struct {
	carRepo  repository.CarRepository
	roleRepo repository.UserRoleRepository
	store    storage.ObjectStore
	bucket   string
}

func NewCarService(carRepo repository.CarRepository, roleRepo repository.UserRoleRepository, store storage.ObjectStore, bucket string) *CarService {
	return &CarService{
		carRepo:  carRepo,
		roleRepo: roleRepo,
		store:    store,
		bucket:   bucket,
	}
}

type CreateCarInput struct {
	Name         string              `json:"name"`
	Brand        string              `json:"brand"`
	Model        *string             `json:"model,omitempty"`
	Price        int64               `json:"price"`
	Year         int                 `json:"year"`
	Mileage      int                 `json:"mileage"`
	FuelType     domain.FuelType     `json:"fuelType"`
	Transmission domain.Transmission `json:"transmission"`
	Location     string              `json:"location"`
	Description  *string             `json:"description,omitempty"`
	Images       []string            `json:"images"`
}

// Create stores a new listing owned by ownerID. Listings start pending.
func (s *CarService) Create(ctx context.Context, ownerID uuid.UUID, input CreateCarInput) (*domain.Car, error) {
	now := time.Now()
	car := &domain.Car{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		Name:         strings.TrimSpace(input.Name),
		Brand:        strings.TrimSpace(input.Brand),
		Model:        input.Model,
		Price:        input.Price,
		Year:         input.Year,
		Mileage:      input.Mileage,
		FuelType:     input.FuelType,
		Transmission: input.Transmission,
		Location:     strings.TrimSpace(input.Location),
		Description:  input.Description,
		Images:       input.Images,
		Status:       domain.CarStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := car.Validate(); err != nil {
		return nil, err
	}

	if err := s.carRepo.Create(ctx, car); err != nil {
		return nil, err
	}
	return car, nil
}

// List returns the public catalogue. Only available listings are returned
// whatever status the filter asks for.
func (s *CarService) List(ctx context.Context, filter domain.CarFilter) ([]*domain.Car, error) {
	available := domain.CarStatusAvailable
	filter.Status = &available
	filter.OwnerID = nil
	return s.carRepo.List(ctx, filter)
}

// ListByOwner returns every listing of ownerID in any status.
func (s *CarService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Car, error) {
	return s.carRepo.List(ctx, domain.CarFilter{OwnerID: &ownerID})
}

// Get returns a car the viewer may see. Hidden cars are reported as not
// found. viewer is nil for anonymous requests.
func (s *CarService) Get(ctx context.Context, viewer *uuid.UUID, id uuid.UUID) (*domain.Car, error) {
	car, err := s.carRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	visible, err := s.canView(ctx, viewer, car)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, domain.NotFound("car", id.String())
	}
	return car, nil
}

func (s *CarService) canView(ctx context.Context, viewer *uuid.UUID, car *domain.Car) (bool, error) {
	if car.Status == domain.CarStatusAvailable {
		return true, nil
	}
	if viewer == nil {
		return false, nil
	}
	if car.OwnerID == *viewer {
		return true, nil
	}
	return s.roleRepo.HasRole(ctx, *viewer, domain.RoleAdmin)
}

// ChangeStatus moves a car along the status graph. The graph is checked
// before the actor so an illegal edge is reported as such to everyone.
func (s *CarService) ChangeStatus(ctx context.Context, actorID, id uuid.UUID, to domain.CarStatus) (*domain.Car, error) {
	car, err := s.carRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *car
	if err := next.Transition(to); err != nil {
		return nil, err
	}

	isAdmin, err := s.roleRepo.HasRole(ctx, actorID, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}

	switch to {
	case domain.CarStatusAvailable, domain.CarStatusRejected:
		if !isAdmin {
			return nil, domain.Forbidden("only an admin can review listings")
		}
	case domain.CarStatusSold:
		if !isAdmin && car.OwnerID != actorID {
			return nil, domain.Forbidden("only the owner can mark a listing sold")
		}
	}

	if err := s.carRepo.UpdateStatus(ctx, id, car.Status, to); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()
	return &next, nil
}

// Delete removes a listing. Its images are removed from storage on a best
// effort basis.
func (s *CarService) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	car, err := s.carRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if car.OwnerID != actorID {
		isAdmin, err := s.roleRepo.HasRole(ctx, actorID, domain.RoleAdmin)
		if err != nil {
			return err
		}
		if !isAdmin {
			return domain.Forbidden("only the owner can delete a listing")
		}
	}

	if err := s.carRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.deleteImages(ctx, car)
	return nil
}

func (s *CarService) deleteImages(ctx context.Context, car *domain.Car) {
	if s.store == nil {
		return
	}
	for _, url := range car.Images {
		p, ok := storage.PathFromURL(url, s.bucket)
		if !ok {
			continue
		}
		if err := s.store.Delete(ctx, p); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Printf("ERROR [service.Car] delete image %s of car %s: %v", p, car.ID, err)
		}
	}
}
