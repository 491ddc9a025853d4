package postgres

import (
	"context"
	"time"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type conversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *conversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conversation *domain.Conversation) error {
	err := r.db.WithContext(ctx).
		Omit("Car", "Buyer", "Seller").
		Create(conversation).Error
	return translate(err, "conversation")
}

func (r *conversationRepository) preloaded(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Car").
		Preload("Buyer").
		Preload("Seller")
}

func (r *conversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	var conversation domain.Conversation
	if err := r.preloaded(ctx).First(&conversation, "id = ?", id).Error; err != nil {
		return nil, translate(err, "conversation")
	}
	return &conversation, nil
}

func (r *conversationRepository) FindByParticipants(ctx context.Context, buyerID, sellerID uuid.UUID, carID *uuid.UUID) (*domain.Conversation, error) {
	q := r.preloaded(ctx).Where("buyer_id = ? AND seller_id = ?", buyerID, sellerID)
	if carID == nil {
		q = q.Where("car_id IS NULL")
	} else {
		q = q.Where("car_id = ?", *carID)
	}

	var conversation domain.Conversation
	if err := q.First(&conversation).Error; err != nil {
		return nil, translate(err, "conversation")
	}
	return &conversation, nil
}

func (r *conversationRepository) ListByParticipant(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	var conversations []*domain.Conversation
	err := r.preloaded(ctx).
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("last_message_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, translate(err, "conversation")
	}
	return conversations, nil
}

func (r *conversationRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("last_message_at", at)
	if res.Error != nil {
		return translate(res.Error, "conversation")
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("conversation", id.String())
	}
	return nil
}
