package httpgateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
)

func (g *Gateway) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	var stats domain.DashboardStats
	if err := g.get(ctx, "/admin/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListAllCars lists listings of every owner; nil status means all.
func (g *Gateway) ListAllCars(ctx context.Context, status *domain.CarStatus) ([]*domain.Car, error) {
	var query url.Values
	if status != nil {
		query = url.Values{"status": {string(*status)}}
	}
	var cars []*domain.Car
	err := g.do(ctx, request{method: http.MethodGet, path: "/admin/cars", query: query, auth: true}, &cars)
	return cars, err
}

func (g *Gateway) ListUsers(ctx context.Context) ([]*domain.UserWithRole, error) {
	var users []*domain.UserWithRole
	err := g.get(ctx, "/admin/users", &users)
	return users, err
}

func (g *Gateway) GrantAdmin(ctx context.Context, userID uuid.UUID) error {
	return g.post(ctx, "/admin/users/"+userID.String()+"/admin", nil, nil)
}

func (g *Gateway) RevokeAdmin(ctx context.Context, userID uuid.UUID) error {
	return g.delete(ctx, "/admin/users/"+userID.String()+"/admin")
}
