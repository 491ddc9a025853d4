package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Profile struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID      uuid.UUID  `json:"userId" gorm:"type:uuid;not null;uniqueIndex"`
	FullName    string     `json:"fullName" gorm:"not null"`
	Email       string     `json:"email" gorm:"not null"`
	Phone       *string    `json:"phone"`
	Location    *string    `json:"location"`
	AvatarURL   *string    `json:"avatarUrl"`
	DateOfBirth *time.Time `json:"dateOfBirth" gorm:"type:date"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	// Derived from user_roles, never stored on the row.
	IsAdmin bool `json:"isAdmin" gorm:"-"`
}

const maxFullNameLength = 100

// Validate checks the editable profile fields.
func (p *Profile) Validate() error {
	name := strings.TrimSpace(p.FullName)
	if name == "" {
		return ValidationFailed("fullName", "full name is required")
	}
	if len(name) > maxFullNameLength {
		return ValidationFailed("fullName", "full name is too long")
	}
	return nil
}

// ProfileFields are the values collected at sign-up and on the profile page.
type ProfileFields struct {
	FullName    string     `json:"fullName"`
	Phone       *string    `json:"phone,omitempty"`
	Location    *string    `json:"location,omitempty"`
	AvatarURL   *string    `json:"avatarUrl,omitempty"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
}

// Apply copies the editable fields onto p.
func (f ProfileFields) Apply(p *Profile) {
	p.FullName = strings.TrimSpace(f.FullName)
	p.Phone = f.Phone
	p.Location = f.Location
	p.AvatarURL = f.AvatarURL
	p.DateOfBirth = f.DateOfBirth
}

// UserWithRole is a profile row as listed in the admin console.
type UserWithRole struct {
	Profile *Profile `json:"profile"`
	Role    Role     `json:"role"`
}
