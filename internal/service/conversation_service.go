package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/repository"
	"github.com/dom/car-marketplace/internal/websocket"
	"github.com/google/uuid"
)

type ConversationService struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	carRepo          repository.CarRepository
	publisher        websocket.Publisher
}

func NewConversationService(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	carRepo repository.CarRepository,
	publisher websocket.Publisher,
) *ConversationService {
	return &ConversationService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		carRepo:          carRepo,
		publisher:        publisher,
	}
}

type StartConversationInput struct {
	SellerID uuid.UUID  `json:"sellerId"`
	CarID    *uuid.UUID `json:"carId,omitempty"`
}

// Find returns the conversation for the participant triple, or
// domain.ErrNotFound.
func (s *ConversationService) Find(ctx context.Context, buyerID, sellerID uuid.UUID, carID *uuid.UUID) (*domain.Conversation, error) {
	return s.conversationRepo.FindByParticipants(ctx, buyerID, sellerID, carID)
}

// Start returns the existing conversation between buyerID and the seller
// about the car, creating it if needed. created reports whether a new row
// was inserted.
func (s *ConversationService) Start(ctx context.Context, buyerID uuid.UUID, input StartConversationInput) (conv *domain.Conversation, created bool, err error) {
	if input.SellerID == uuid.Nil {
		return nil, false, domain.ValidationFailed("sellerId", "seller is required")
	}
	if input.SellerID == buyerID {
		return nil, false, domain.ValidationFailed("sellerId", "you cannot message yourself")
	}
	if input.CarID != nil {
		car, err := s.carRepo.GetByID(ctx, *input.CarID)
		if err != nil {
			return nil, false, err
		}
		if car.OwnerID != input.SellerID {
			return nil, false, domain.ValidationFailed("carId", "car does not belong to the seller")
		}
	}

	existing, err := s.Find(ctx, buyerID, input.SellerID, input.CarID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	now := time.Now()
	conv = &domain.Conversation{
		ID:            uuid.New(),
		CarID:         input.CarID,
		BuyerID:       buyerID,
		SellerID:      input.SellerID,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if err := s.conversationRepo.Create(ctx, conv); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost the race against a concurrent Start.
			existing, err := s.Find(ctx, buyerID, input.SellerID, input.CarID)
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	stored, err := s.conversationRepo.GetByID(ctx, conv.ID)
	if err == nil {
		conv = stored
	}
	s.publish(websocket.EventInserted, conv)
	return conv, true, nil
}

// List returns userID's conversations, most recently active first.
func (s *ConversationService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	return s.conversationRepo.ListByParticipant(ctx, userID)
}

// Get returns a conversation userID takes part in.
func (s *ConversationService) Get(ctx context.Context, userID, id uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.conversationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, domain.Forbidden("you are not a participant in this conversation")
	}
	return conv, nil
}

// CountUnread counts messages in the conversation sent by the other party
// and not yet read by userID.
func (s *ConversationService) CountUnread(ctx context.Context, userID, id uuid.UUID) (int64, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return 0, err
	}
	return s.messageRepo.CountUnread(ctx, id, userID)
}

// Touch bumps the conversation's last activity time.
func (s *ConversationService) Touch(ctx context.Context, userID, id uuid.UUID) error {
	conv, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	now := time.Now()
	if err := s.conversationRepo.Touch(ctx, id, now); err != nil {
		return err
	}
	conv.LastMessageAt = now
	s.publish(websocket.EventUpdated, conv)
	return nil
}

func (s *ConversationService) publish(eventType websocket.EventType, conv *domain.Conversation) {
	ev, err := websocket.NewChangeEvent(websocket.CollectionConversations, eventType, conv, map[string][]string{
		websocket.FieldParticipantID: {conv.BuyerID.String(), conv.SellerID.String()},
	})
	if err != nil {
		log.Printf("ERROR [service.Conversation] encode event for %s: %v", conv.ID, err)
		return
	}
	s.publisher.Publish(ev)
}
