package client

import (
	"context"
	"errors"
	"strings"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
)

// AllFilter is the "no constraint" choice of a filter dropdown.
const AllFilter = "all"

// CarFilter is what a search form holds. Query turns it into predicates.
type CarFilter struct {
	Brand    string
	Location string
	FuelType string
	MinPrice int64
	MaxPrice int64
}

// Query drops empty values, the AllFilter sentinel and non-positive prices.
func (f CarFilter) Query() CarQuery {
	q := CarQuery{
		Brand:    choice(f.Brand),
		Location: choice(f.Location),
		FuelType: choice(f.FuelType),
	}
	if f.MinPrice > 0 {
		v := f.MinPrice
		q.MinPrice = &v
	}
	if f.MaxPrice > 0 {
		v := f.MaxPrice
		q.MaxPrice = &v
	}
	return q
}

func choice(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, AllFilter) {
		return ""
	}
	return v
}

// Cars is the public listing search. Each Fetch replaces the cache.
type Cars struct {
	gw CarGateway
	l  *loader[[]*domain.Car]
}

func NewCars(gw CarGateway) *Cars {
	return &Cars{gw: gw, l: newLoader[[]*domain.Car]()}
}

func (c *Cars) Fetch(ctx context.Context, filter CarFilter) State[[]*domain.Car] {
	q := filter.Query()
	return c.l.run(func() ([]*domain.Car, error) {
		return c.gw.ListCars(ctx, q)
	})
}

func (c *Cars) State() State[[]*domain.Car] { return c.l.snapshot() }

func (c *Cars) Close() { c.l.close() }

// UserCars lists the signed-in seller's own cars in every status.
type UserCars struct {
	gw      CarGateway
	session *Store
	l       *loader[[]*domain.Car]
}

func NewUserCars(gw CarGateway, session *Store) *UserCars {
	return &UserCars{gw: gw, session: session, l: newLoader[[]*domain.Car]()}
}

// Fetch is a no-op returning an empty ready state when nobody is signed in.
func (u *UserCars) Fetch(ctx context.Context) State[[]*domain.Car] {
	if _, ok := u.session.UserID(); !ok {
		return u.l.run(func() ([]*domain.Car, error) { return nil, nil })
	}
	return u.l.run(func() ([]*domain.Car, error) {
		return u.gw.ListMyCars(ctx)
	})
}

func (u *UserCars) State() State[[]*domain.Car] { return u.l.snapshot() }

// Replace swaps one cached car for its updated version. Cached slices
// are never edited in place, so earlier snapshots stay valid.
func (u *UserCars) Replace(car *domain.Car) {
	u.l.mutate(func(cars *[]*domain.Car) {
		next := make([]*domain.Car, len(*cars))
		for i, c := range *cars {
			if c.ID == car.ID {
				c = car
			}
			next[i] = c
		}
		*cars = next
	})
}

// Remove drops a car from the cache.
func (u *UserCars) Remove(id uuid.UUID) {
	u.l.mutate(func(cars *[]*domain.Car) {
		*cars = removeCar(*cars, id)
	})
}

func (u *UserCars) Close() { u.l.close() }

// CarByID loads one listing. A missing or hidden car is a ready state
// with nil data.
type CarByID struct {
	gw CarGateway
	l  *loader[*domain.Car]
}

func NewCarByID(gw CarGateway) *CarByID {
	return &CarByID{gw: gw, l: newLoader[*domain.Car]()}
}

func (c *CarByID) Fetch(ctx context.Context, id uuid.UUID) State[*domain.Car] {
	return c.l.run(func() (*domain.Car, error) {
		car, err := c.gw.GetCar(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return car, err
	})
}

func (c *CarByID) State() State[*domain.Car] { return c.l.snapshot() }

func (c *CarByID) Close() { c.l.close() }

func removeCar(cars []*domain.Car, id uuid.UUID) []*domain.Car {
	out := make([]*domain.Car, 0, len(cars))
	for _, c := range cars {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}
