package client

import (
	"context"
	"strings"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
)

// AdminConsole backs the moderation pages: dashboard stats, listings by
// status, approvals and user roles.
type AdminConsole struct {
	gw      AdminGateway
	cars    CarGateway
	session *Store

	stats    *loader[*domain.DashboardStats]
	listings *loader[[]*domain.Car]
	users    *loader[[]*domain.UserWithRole]

	filter *domain.CarStatus
}

func NewAdminConsole(gw AdminGateway, cars CarGateway, session *Store) *AdminConsole {
	return &AdminConsole{
		gw:       gw,
		cars:     cars,
		session:  session,
		stats:    newLoader[*domain.DashboardStats](),
		listings: newLoader[[]*domain.Car](),
		users:    newLoader[[]*domain.UserWithRole](),
	}
}

// ParseStatusFilter maps a filter dropdown value to a status; "all" and
// "" mean no filter.
func ParseStatusFilter(v string) (*domain.CarStatus, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" || v == AllFilter {
		return nil, nil
	}
	status := domain.CarStatus(v)
	if !status.IsValid() {
		return nil, domain.ValidationFailed("status", "unknown status "+v)
	}
	return &status, nil
}

func (a *AdminConsole) requireAdmin() error {
	if _, ok := a.session.UserID(); !ok {
		return domain.ErrUnauthenticated
	}
	if !a.session.IsAdmin() {
		return domain.Forbidden("admin access required")
	}
	return nil
}

func (a *AdminConsole) FetchStats(ctx context.Context) State[*domain.DashboardStats] {
	return a.stats.run(func() (*domain.DashboardStats, error) {
		if err := a.requireAdmin(); err != nil {
			return nil, err
		}
		return a.gw.Stats(ctx)
	})
}

func (a *AdminConsole) Stats() State[*domain.DashboardStats] { return a.stats.snapshot() }

// FetchListings lists cars matching status, nil meaning every status.
func (a *AdminConsole) FetchListings(ctx context.Context, status *domain.CarStatus) State[[]*domain.Car] {
	a.listings.mu.Lock()
	a.filter = status
	a.listings.mu.Unlock()
	return a.listings.run(func() ([]*domain.Car, error) {
		if err := a.requireAdmin(); err != nil {
			return nil, err
		}
		return a.gw.ListAllCars(ctx, status)
	})
}

func (a *AdminConsole) Listings() State[[]*domain.Car] { return a.listings.snapshot() }

func (a *AdminConsole) Approve(ctx context.Context, id uuid.UUID) (*domain.Car, error) {
	return a.SetStatus(ctx, id, domain.CarStatusAvailable)
}

func (a *AdminConsole) Reject(ctx context.Context, id uuid.UUID) (*domain.Car, error) {
	return a.SetStatus(ctx, id, domain.CarStatusRejected)
}

// SetStatus moves a listing along the status graph and updates the cached
// listings; a car that no longer matches the active filter is dropped.
func (a *AdminConsole) SetStatus(ctx context.Context, id uuid.UUID, status domain.CarStatus) (*domain.Car, error) {
	if err := a.requireAdmin(); err != nil {
		return nil, err
	}
	car, err := a.cars.SetCarStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	a.listings.mutate(func(cars *[]*domain.Car) {
		keep := a.filter == nil || *a.filter == car.Status
		next := make([]*domain.Car, 0, len(*cars))
		for _, c := range *cars {
			if c.ID != car.ID {
				next = append(next, c)
			} else if keep {
				next = append(next, car)
			}
		}
		*cars = next
	})
	a.dropPending(car.ID)
	return car, nil
}

func (a *AdminConsole) DeleteListing(ctx context.Context, id uuid.UUID) error {
	if err := a.requireAdmin(); err != nil {
		return err
	}
	if err := a.cars.DeleteCar(ctx, id); err != nil {
		return err
	}
	a.listings.mutate(func(cars *[]*domain.Car) { *cars = removeCar(*cars, id) })
	a.dropPending(id)
	return nil
}

func (a *AdminConsole) dropPending(id uuid.UUID) {
	a.stats.mutate(func(stats **domain.DashboardStats) {
		if *stats == nil {
			return
		}
		next := **stats
		before := len(next.RecentPending)
		next.RecentPending = removeCar(next.RecentPending, id)
		if len(next.RecentPending) < before && next.PendingCars > 0 {
			next.PendingCars--
		}
		*stats = &next
	})
}

func (a *AdminConsole) FetchUsers(ctx context.Context) State[[]*domain.UserWithRole] {
	return a.users.run(func() ([]*domain.UserWithRole, error) {
		if err := a.requireAdmin(); err != nil {
			return nil, err
		}
		return a.gw.ListUsers(ctx)
	})
}

func (a *AdminConsole) Users() State[[]*domain.UserWithRole] { return a.users.snapshot() }

// SetAdmin grants or revokes the admin role and reloads the user list.
func (a *AdminConsole) SetAdmin(ctx context.Context, userID uuid.UUID, admin bool) error {
	if err := a.requireAdmin(); err != nil {
		return err
	}
	var err error
	if admin {
		err = a.gw.GrantAdmin(ctx, userID)
	} else {
		err = a.gw.RevokeAdmin(ctx, userID)
	}
	if err != nil {
		return err
	}
	a.FetchUsers(ctx)
	return nil
}
