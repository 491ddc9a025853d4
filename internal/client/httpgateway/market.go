package httpgateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dom/car-marketplace/internal/client"
	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
)

// profile

func (g *Gateway) GetProfile(ctx context.Context) (*domain.Profile, error) {
	var profile domain.Profile
	if err := g.get(ctx, "/profile", &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (g *Gateway) UpdateProfile(ctx context.Context, fields domain.ProfileFields) (*domain.Profile, error) {
	var profile domain.Profile
	if err := g.put(ctx, "/profile", fields, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// cars

// ListCars reads the public catalogue. The caller's token is sent when
// signed in but not required.
func (g *Gateway) ListCars(ctx context.Context, q client.CarQuery) ([]*domain.Car, error) {
	query := url.Values{}
	for key, value := range map[string]string{"brand": q.Brand, "location": q.Location, "fuelType": q.FuelType} {
		if value != "" {
			query.Set(key, value)
		}
	}
	if q.MinPrice != nil {
		query.Set("minPrice", strconv.FormatInt(*q.MinPrice, 10))
	}
	if q.MaxPrice != nil {
		query.Set("maxPrice", strconv.FormatInt(*q.MaxPrice, 10))
	}

	var cars []*domain.Car
	err := g.do(ctx, request{method: http.MethodGet, path: "/cars", query: query, auth: g.current() != nil}, &cars)
	return cars, err
}

func (g *Gateway) ListMyCars(ctx context.Context) ([]*domain.Car, error) {
	var cars []*domain.Car
	err := g.get(ctx, "/me/cars", &cars)
	return cars, err
}

func (g *Gateway) GetCar(ctx context.Context, id uuid.UUID) (*domain.Car, error) {
	var car domain.Car
	err := g.do(ctx, request{method: http.MethodGet, path: "/cars/" + id.String(), auth: g.current() != nil}, &car)
	if err != nil {
		return nil, err
	}
	return &car, nil
}

func (g *Gateway) CreateCar(ctx context.Context, car client.NewCar) (*domain.Car, error) {
	var created domain.Car
	if err := g.post(ctx, "/cars", car, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (g *Gateway) SetCarStatus(ctx context.Context, id uuid.UUID, status domain.CarStatus) (*domain.Car, error) {
	var car domain.Car
	if err := g.patch(ctx, "/cars/"+id.String()+"/status", map[string]domain.CarStatus{"status": status}, &car); err != nil {
		return nil, err
	}
	return &car, nil
}

func (g *Gateway) DeleteCar(ctx context.Context, id uuid.UUID) error {
	return g.delete(ctx, "/cars/"+id.String())
}

// favorites

func (g *Gateway) ListFavorites(ctx context.Context) ([]*domain.Favorite, error) {
	var favorites []*domain.Favorite
	err := g.get(ctx, "/favorites", &favorites)
	return favorites, err
}

func (g *Gateway) AddFavorite(ctx context.Context, carID uuid.UUID) error {
	return g.post(ctx, "/favorites", map[string]uuid.UUID{"carId": carID}, nil)
}

func (g *Gateway) RemoveFavorite(ctx context.Context, carID uuid.UUID) error {
	return g.delete(ctx, "/favorites/"+carID.String())
}

// objects

type uploadResponse struct {
	Path      string `json:"path"`
	PublicURL string `json:"publicUrl"`
}

// Upload stores body under path in the image bucket and returns its
// public URL. Bodies are buffered so a refreshed request can resend them.
func (g *Gateway) Upload(ctx context.Context, path, contentType string, size int64, body io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, size+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) != size {
		return "", domain.ValidationFailed("file", "file size does not match its contents")
	}

	var resp uploadResponse
	err = g.do(ctx, request{
		method:      http.MethodPut,
		path:        objectPath(path),
		raw:         data,
		contentType: contentType,
		auth:        true,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.PublicURL, nil
}

func (g *Gateway) Delete(ctx context.Context, path string) error {
	return g.delete(ctx, objectPath(path))
}

func objectPath(p string) string {
	return "/storage/" + client.ImageBucket + "/" + strings.TrimLeft(p, "/")
}
