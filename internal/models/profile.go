package models

import (
	"time"

	"github.com/google/uuid"
)

// UserAddress is a saved shipping address. Lists are returned most recently
// used first; saving a duplicate bumps last_used instead of appending.
type UserAddress struct {
	BaseModel
	UserID     uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Name       string    `json:"name"`
	Line1      string    `json:"line1"`
	Line2      string    `json:"line2"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `json:"postal_code"`
	Country    string    `json:"country"`
	LastUsed   time.Time `json:"last_used"`
}
