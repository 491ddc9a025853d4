package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type CarStatus string

const (
	CarStatusPending   CarStatus = "pending"
	CarStatusAvailable CarStatus = "available"
	CarStatusSold      CarStatus = "sold"
	CarStatusRejected  CarStatus = "rejected"
)

// MaxCarImages bounds a listing's image list.
const MaxCarImages = 10

// carTransitions is the full status graph. sold and rejected are terminal.
var carTransitions = map[CarStatus][]CarStatus{
	CarStatusPending:   {CarStatusAvailable, CarStatusRejected},
	CarStatusAvailable: {CarStatusSold},
}

func (s CarStatus) IsValid() bool {
	switch s {
	case CarStatusPending, CarStatusAvailable, CarStatusSold, CarStatusRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status graph has an edge s -> to.
func (s CarStatus) CanTransitionTo(to CarStatus) bool {
	for _, next := range carTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s CarStatus) IsTerminal() bool {
	return len(carTransitions[s]) == 0
}

type FuelType string

const (
	FuelPetrol   FuelType = "petrol"
	FuelDiesel   FuelType = "diesel"
	FuelElectric FuelType = "electric"
	FuelHybrid   FuelType = "hybrid"
)

func (f FuelType) IsValid() bool {
	switch f {
	case FuelPetrol, FuelDiesel, FuelElectric, FuelHybrid:
		return true
	}
	return false
}

type Transmission string

const (
	TransmissionManual    Transmission = "manual"
	TransmissionAutomatic Transmission = "automatic"
)

func (t Transmission) IsValid() bool {
	return t == TransmissionManual || t == TransmissionAutomatic
}

type Car struct {
	ID           uuid.UUID                   `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OwnerID      uuid.UUID                   `json:"ownerId" gorm:"type:uuid;not null;index"`
	Name         string                      `json:"name" gorm:"not null"`
	Brand        string                      `json:"brand" gorm:"not null;index"`
	Model        *string                     `json:"model"`
	Price        int64                       `json:"price" gorm:"not null"`
	Year         int                         `json:"year" gorm:"not null"`
	Mileage      int                         `json:"mileage" gorm:"not null"`
	FuelType     FuelType                    `json:"fuelType" gorm:"type:varchar(20);not null"`
	Transmission Transmission                `json:"transmission" gorm:"type:varchar(20);not null"`
	Location     string                      `json:"location" gorm:"not null"`
	Description  *string                     `json:"description"`
	Images       datatypes.JSONSlice[string] `json:"images" gorm:"not null"`
	Status       CarStatus                   `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	CreatedAt    time.Time                   `json:"createdAt"`
	UpdatedAt    time.Time                   `json:"updatedAt"`

	Owner *Profile `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:UserID"`
}

// CoverImage returns images[0], or "" for a listing without images.
func (c *Car) CoverImage() string {
	if len(c.Images) == 0 {
		return ""
	}
	return c.Images[0]
}

// Transition moves the car along the status graph.
func (c *Car) Transition(to CarStatus) error {
	if !to.IsValid() {
		return ValidationFailed("status", "unknown status "+string(to))
	}
	if !c.Status.CanTransitionTo(to) {
		return InvalidTransition(c.Status, to)
	}
	c.Status = to
	return nil
}

// Validate checks a listing before it is stored.
func (c *Car) Validate() error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return ValidationFailed("name", "name is required")
	case strings.TrimSpace(c.Brand) == "":
		return ValidationFailed("brand", "brand is required")
	case strings.TrimSpace(c.Location) == "":
		return ValidationFailed("location", "location is required")
	case c.Price <= 0:
		return ValidationFailed("price", "price must be positive")
	case c.Year < 1900 || c.Year > time.Now().Year()+1:
		return ValidationFailed("year", "year is out of range")
	case c.Mileage < 0:
		return ValidationFailed("mileage", "mileage must be non-negative")
	case strings.TrimSpace(string(c.FuelType)) == "":
		return ValidationFailed("fuelType", "fuel type is required")
	case !c.FuelType.IsValid():
		return ValidationFailed("fuelType", "fuel type must be petrol, diesel, electric or hybrid")
	case strings.TrimSpace(string(c.Transmission)) == "":
		return ValidationFailed("transmission", "transmission is required")
	case !c.Transmission.IsValid():
		return ValidationFailed("transmission", "transmission must be manual or automatic")
	}
	return ValidateImages(c.Images)
}

// ValidateImages enforces the listing image policy: at least one, at most MaxCarImages.
func ValidateImages(images []string) error {
	if len(images) == 0 {
		return ValidationFailed("images", "at least one image is required")
	}
	if len(images) > MaxCarImages {
		return ValidationFailed("images", "a listing can have at most 10 images")
	}
	for _, img := range images {
		if strings.TrimSpace(img) == "" {
			return ValidationFailed("images", "image URL must not be empty")
		}
	}
	return nil
}

// CarFilter is the allow-list of predicates a car query may carry.
// Empty fields are not applied.
type CarFilter struct {
	Brand    string
	Location string
	FuelType string
	MinPrice *int64
	MaxPrice *int64
	Status   *CarStatus
	OwnerID  *uuid.UUID
	Limit    int
}
