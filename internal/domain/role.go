package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is an application role. Users without a role row are RoleUser.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// IsValid checks if a role is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleUser:
		return true
	}
	return false
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

type UserRole struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID    uuid.UUID `json:"userId" gorm:"type:uuid;not null;uniqueIndex:idx_user_roles_user_role"`
	Role      Role      `json:"role" gorm:"type:varchar(10);not null;uniqueIndex:idx_user_roles_user_role"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName returns the table name for GORM
func (UserRole) TableName() string {
	return "user_roles"
}

// HighestRole collapses a user's role rows into the role shown in the admin console.
func HighestRole(roles []*UserRole) Role {
	for _, r := range roles {
		if r.Role == RoleAdmin {
			return RoleAdmin
		}
	}
	return RoleUser
}
