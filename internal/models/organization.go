package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is a tenant. Every user belongs to exactly one.
type Organization struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
