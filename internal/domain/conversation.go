package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is unique per (buyer, seller, car). A partial index covers
// the car-less case; deleting a car deletes the conversations about it.
type Conversation struct {
	ID            uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CarID         *uuid.UUID `json:"carId" gorm:"type:uuid;uniqueIndex:idx_conversations_participants"`
	BuyerID       uuid.UUID  `json:"buyerId" gorm:"type:uuid;not null;uniqueIndex:idx_conversations_participants;index"`
	SellerID      uuid.UUID  `json:"sellerId" gorm:"type:uuid;not null;uniqueIndex:idx_conversations_participants;index"`
	LastMessageAt time.Time  `json:"lastMessageAt" gorm:"not null;index"`
	CreatedAt     time.Time  `json:"createdAt"`

	Car    *Car     `json:"car,omitempty" gorm:"foreignKey:CarID;constraint:OnDelete:CASCADE"`
	Buyer  *Profile `json:"buyer,omitempty" gorm:"foreignKey:BuyerID;references:UserID"`
	Seller *Profile `json:"seller,omitempty" gorm:"foreignKey:SellerID;references:UserID"`

	// Computed per viewer by a count query.
	UnreadCount int `json:"unreadCount,omitempty" gorm:"-"`
}

// HasParticipant reports whether userID is the buyer or the seller.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.BuyerID == userID || c.SellerID == userID
}

// Counterpart returns the other participant's profile as seen by userID.
func (c *Conversation) Counterpart(userID uuid.UUID) *Profile {
	if c.BuyerID == userID {
		return c.Seller
	}
	return c.Buyer
}

// SameCar reports whether the conversation is about carID (nil means no car).
func (c *Conversation) SameCar(carID *uuid.UUID) bool {
	if c.CarID == nil || carID == nil {
		return c.CarID == nil && carID == nil
	}
	return *c.CarID == *carID
}
