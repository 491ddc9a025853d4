package client

import (
	"context"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
)

// Listings are the seller-side mutations: create, mark sold, delete and
// profile edits. Changes are reflected in mine when it is set.
type Listings struct {
	cars     CarGateway
	profiles ProfileGateway
	session  *Store
	mine     *UserCars
}

func NewListings(cars CarGateway, profiles ProfileGateway, session *Store, mine *UserCars) *Listings {
	return &Listings{cars: cars, profiles: profiles, session: session, mine: mine}
}

// Create submits a listing for review. It starts out pending.
func (l *Listings) Create(ctx context.Context, car NewCar) (*domain.Car, error) {
	if _, ok := l.session.UserID(); !ok {
		return nil, domain.ErrUnauthenticated
	}
	if err := domain.ValidateImages(car.Images); err != nil {
		return nil, err
	}
	created, err := l.cars.CreateCar(ctx, car)
	if err != nil {
		return nil, err
	}
	if l.mine != nil {
		l.mine.l.mutate(func(cars *[]*domain.Car) {
			*cars = append([]*domain.Car{created}, *cars...)
		})
	}
	return created, nil
}

func (l *Listings) MarkSold(ctx context.Context, id uuid.UUID) (*domain.Car, error) {
	car, err := l.cars.SetCarStatus(ctx, id, domain.CarStatusSold)
	if err != nil {
		return nil, err
	}
	if l.mine != nil {
		l.mine.Replace(car)
	}
	return car, nil
}

func (l *Listings) Delete(ctx context.Context, id uuid.UUID) error {
	if err := l.cars.DeleteCar(ctx, id); err != nil {
		return err
	}
	if l.mine != nil {
		l.mine.Remove(id)
	}
	return nil
}

// UpdateProfile saves the profile and refreshes the session's cached copy.
func (l *Listings) UpdateProfile(ctx context.Context, fields domain.ProfileFields) (*domain.Profile, error) {
	if _, ok := l.session.UserID(); !ok {
		return nil, domain.ErrUnauthenticated
	}
	profile, err := l.profiles.UpdateProfile(ctx, fields)
	if err != nil {
		return nil, err
	}
	if err := l.session.RefreshProfile(ctx); err != nil {
		return profile, err
	}
	return profile, nil
}
