package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the position a user holds inside their organization.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleDoctor Role = "DOCTOR"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleDoctor:
		return true
	}
	return false
}

type User struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OrganizationID uuid.UUID `json:"organizationId" db:"organization_id"`
	Email          string    `json:"email" db:"email"`
	PasswordHash   string    `json:"-" db:"password_hash"` // Never serialize in JSON
	FirstName      string    `json:"firstName" db:"first_name"`
	LastName       string    `json:"lastName" db:"last_name"`
	Role           Role      `json:"role" db:"role"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}
