package domain

import (
	"time"

	"github.com/google/uuid"
)

// Favorite is a membership fact: user_id saved car_id. The pair is unique.
type Favorite struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID    uuid.UUID `json:"userId" gorm:"type:uuid;not null;uniqueIndex:idx_favorites_user_car"`
	CarID     uuid.UUID `json:"carId" gorm:"type:uuid;not null;uniqueIndex:idx_favorites_user_car"`
	CreatedAt time.Time `json:"createdAt"`

	Car *Car `json:"car,omitempty" gorm:"foreignKey:CarID;constraint:OnDelete:CASCADE"`
}
