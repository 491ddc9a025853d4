package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/repository"
	"github.com/dom/car-marketplace/internal/websocket"
	"github.com/google/uuid"
)

type MessageService struct {
	messageRepo   repository.MessageRepository
	conversations *ConversationService
	publisher     websocket.Publisher
}

func NewMessageService(messageRepo repository.MessageRepository, conversations *ConversationService, publisher websocket.Publisher) *MessageService {
	return &MessageService{
		messageRepo:   messageRepo,
		conversations: conversations,
		publisher:     publisher,
	}
}

// List returns the conversation's messages oldest first.
func (s *MessageService) List(ctx context.Context, userID, conversationID uuid.UUID) ([]*domain.Message, error) {
	if _, err := s.conversations.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.messageRepo.ListByConversation(ctx, conversationID)
}

// Send appends a message from senderID and notifies subscribers.
func (s *MessageService) Send(ctx context.Context, senderID, conversationID uuid.UUID, content string) (*domain.Message, error) {
	if err := domain.ValidateMessageContent(content); err != nil {
		return nil, err
	}
	if _, err := s.conversations.Get(ctx, senderID, conversationID); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        strings.TrimSpace(content),
		CreatedAt:      time.Now(),
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.publish(websocket.EventInserted, msg)
	return msg, nil
}

// MarkRead marks every message from the other participant as read by
// readerID and returns how many changed.
func (s *MessageService) MarkRead(ctx context.Context, readerID, conversationID uuid.UUID) (int64, error) {
	conv, err := s.conversations.Get(ctx, readerID, conversationID)
	if err != nil {
		return 0, err
	}

	n, err := s.messageRepo.MarkRead(ctx, conversationID, readerID, time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.conversations.publish(websocket.EventUpdated, conv)
	}
	return n, nil
}

func (s *MessageService) publish(eventType websocket.EventType, msg *domain.Message) {
	ev, err := websocket.NewChangeEvent(websocket.CollectionMessages, eventType, msg, map[string][]string{
		websocket.FieldConversationID: {msg.ConversationID.String()},
	})
	if err != nil {
		log.Printf("ERROR [service.Message] encode event for %s: %v", msg.ID, err)
		return
	}
	s.publisher.Publish(ev)
}
