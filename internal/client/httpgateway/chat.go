package httpgateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
)

type countResponse struct {
	Count int64 `json:"count"`
}

func conversationPath(id uuid.UUID, suffix string) string {
	return "/conversations/" + id.String() + suffix
}

func (g *Gateway) ListConversations(ctx context.Context) ([]*domain.Conversation, error) {
	var convs []*domain.Conversation
	err := g.get(ctx, "/conversations", &convs)
	return convs, err
}

// FindConversation returns the caller's conversation with sellerID about
// carID, or a not-found error.
func (g *Gateway) FindConversation(ctx context.Context, sellerID uuid.UUID, carID *uuid.UUID) (*domain.Conversation, error) {
	query := url.Values{"sellerId": {sellerID.String()}}
	if carID != nil {
		query.Set("carId", carID.String())
	}
	var conv domain.Conversation
	err := g.do(ctx, request{method: http.MethodGet, path: "/conversations/lookup", query: query, auth: true}, &conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (g *Gateway) CreateConversation(ctx context.Context, sellerID uuid.UUID, carID *uuid.UUID) (*domain.Conversation, error) {
	var resp struct {
		Conversation *domain.Conversation `json:"conversation"`
		Created      bool                 `json:"created"`
	}
	body := map[string]interface{}{"sellerId": sellerID}
	if carID != nil {
		body["carId"] = carID
	}
	if err := g.post(ctx, "/conversations", body, &resp); err != nil {
		return nil, err
	}
	return resp.Conversation, nil
}

func (g *Gateway) CountUnread(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	var resp countResponse
	if err := g.get(ctx, conversationPath(conversationID, "/unread-count"), &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (g *Gateway) TouchConversation(ctx context.Context, conversationID uuid.UUID) error {
	return g.post(ctx, conversationPath(conversationID, "/touch"), nil, nil)
}

func (g *Gateway) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error) {
	var messages []*domain.Message
	err := g.get(ctx, conversationPath(conversationID, "/messages"), &messages)
	return messages, err
}

func (g *Gateway) SendMessage(ctx context.Context, conversationID uuid.UUID, content string) (*domain.Message, error) {
	var msg domain.Message
	if err := g.post(ctx, conversationPath(conversationID, "/messages"), map[string]string{"content": content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (g *Gateway) MarkRead(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	var resp countResponse
	if err := g.post(ctx, conversationPath(conversationID, "/read"), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}
