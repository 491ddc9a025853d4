package client

import (
	"context"
	"errors"
	"log"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
)

// Notifier shows short user-facing notices.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// LogNotifier writes notices to the standard logger.
type LogNotifier struct{}

func (LogNotifier) Success(message string) { log.Printf("INFO [notice] %s", message) }
func (LogNotifier) Error(message string)   { log.Printf("ERROR [notice] %s", message) }

// FavoriteSet is the signed-in user's favorites: membership by car id and
// the joined car records.
type FavoriteSet struct {
	IDs  map[uuid.UUID]struct{}
	Cars []*domain.Car
}

func (s FavoriteSet) Has(carID uuid.UUID) bool {
	_, ok := s.IDs[carID]
	return ok
}

func (s FavoriteSet) with(carID uuid.UUID) FavoriteSet {
	ids := make(map[uuid.UUID]struct{}, len(s.IDs)+1)
	for id := range s.IDs {
		ids[id] = struct{}{}
	}
	ids[carID] = struct{}{}
	return FavoriteSet{IDs: ids, Cars: s.Cars}
}

func (s FavoriteSet) without(carID uuid.UUID) FavoriteSet {
	ids := make(map[uuid.UUID]struct{}, len(s.IDs))
	for id := range s.IDs {
		if id != carID {
			ids[id] = struct{}{}
		}
	}
	return FavoriteSet{IDs: ids, Cars: removeCar(s.Cars, carID)}
}

const (
	noticeLoginToSave     = "Please log in to save cars"
	noticeFavoriteAdded   = "Added to favorites"
	noticeFavoriteRemoved = "Removed from favorites"
)

type Favorites struct {
	gw      FavoriteGateway
	session *Store
	notice  Notifier
	l       *loader[FavoriteSet]
}

func NewFavorites(gw FavoriteGateway, session *Store, notice Notifier) *Favorites {
	if notice == nil {
		notice = LogNotifier{}
	}
	return &Favorites{gw: gw, session: session, notice: notice, l: newLoader[FavoriteSet]()}
}

// Fetch reloads the favorites. Anonymous sessions have none.
func (f *Favorites) Fetch(ctx context.Context) State[FavoriteSet] {
	if _, ok := f.session.UserID(); !ok {
		return f.l.run(func() (FavoriteSet, error) {
			return FavoriteSet{IDs: map[uuid.UUID]struct{}{}}, nil
		})
	}
	return f.l.run(func() (FavoriteSet, error) {
		favorites, err := f.gw.ListFavorites(ctx)
		if err != nil {
			return FavoriteSet{}, err
		}
		set := FavoriteSet{IDs: make(map[uuid.UUID]struct{}, len(favorites))}
		for _, fav := range favorites {
			set.IDs[fav.CarID] = struct{}{}
			if fav.Car != nil {
				set.Cars = append(set.Cars, fav.Car)
			}
		}
		return set, nil
	})
}

func (f *Favorites) State() State[FavoriteSet] { return f.l.snapshot() }

func (f *Favorites) IsFavorite(carID uuid.UUID) bool {
	return f.l.snapshot().Data.Has(carID)
}

// Toggle flips membership of carID based on the cached set and reports
// the resulting membership. A duplicate insert counts as already
// favorited. Anonymous callers get a notice and no remote call is made.
func (f *Favorites) Toggle(ctx context.Context, carID uuid.UUID) (bool, error) {
	if _, ok := f.session.UserID(); !ok {
		f.notice.Error(noticeLoginToSave)
		return false, domain.ErrUnauthenticated
	}

	if f.IsFavorite(carID) {
		if err := f.gw.RemoveFavorite(ctx, carID); err != nil {
			f.notice.Error(ErrorMessage(err))
			return true, err
		}
		f.l.mutate(func(set *FavoriteSet) { *set = set.without(carID) })
		f.notice.Success(noticeFavoriteRemoved)
		return false, nil
	}

	if err := f.gw.AddFavorite(ctx, carID); err != nil && !errors.Is(err, domain.ErrConflict) {
		f.notice.Error(ErrorMessage(err))
		return false, err
	}
	f.l.mutate(func(set *FavoriteSet) { *set = set.with(carID) })
	f.notice.Success(noticeFavoriteAdded)

	// The insert does not return the joined car.
	f.Fetch(ctx)
	return true, nil
}

func (f *Favorites) Close() { f.l.close() }
