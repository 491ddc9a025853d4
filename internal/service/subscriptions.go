package service

import (
	"context"
	"errors"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/repository"
	"github.com/dom/car-marketplace/internal/websocket"
	"github.com/google/uuid"
)

// SubscriptionAuthorizer applies the conversation read rules to realtime
// subscriptions.
type SubscriptionAuthorizer struct {
	conversationRepo repository.ConversationRepository
}

func NewSubscriptionAuthorizer(conversationRepo repository.ConversationRepository) *SubscriptionAuthorizer {
	return &SubscriptionAuthorizer{conversationRepo: conversationRepo}
}

func (a *SubscriptionAuthorizer) AuthorizeSubscription(ctx context.Context, userID uuid.UUID, topic websocket.Topic) error {
	switch topic.Collection {
	case websocket.CollectionConversations:
		if topic.Filter.Field != websocket.FieldParticipantID || topic.Filter.Value != userID.String() {
			return domain.Forbidden("conversation subscriptions must be scoped to participant_id=<your id>")
		}
		return nil

	case websocket.CollectionMessages:
		if topic.Filter.Field != websocket.FieldConversationID {
			return domain.Forbidden("message subscriptions must be scoped to a conversation_id")
		}
		convID, err := uuid.Parse(topic.Filter.Value)
		if err != nil {
			return domain.ValidationFailed("filter", "invalid conversation id")
		}
		conv, err := a.conversationRepo.GetByID(ctx, convID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Forbidden("you are not a participant in this conversation")
			}
			return err
		}
		if !conv.HasParticipant(userID) {
			return domain.Forbidden("you are not a participant in this conversation")
		}
		return nil
	}
	return domain.Forbidden("unknown collection " + topic.Collection)
}
