package models

import (
	"time"
)

// Account lifecycle states.
const (
	AccountStatusActive   = "active"
	AccountStatusInvited  = "invited"
	AccountStatusDisabled = "disabled"
)

// User represents a storefront customer. Guest checkouts have no user row
// until the account is activated, at which point matching orders are
// backfilled.
type User struct {
	BaseModel
	Email         string        `gorm:"uniqueIndex" json:"email"`
	Name          string        `json:"name"`
	Image         string        `json:"image"`
	AccountStatus string        `json:"account_status"`
	PasswordHash  string        `json:"-"`
	Addresses     []UserAddress `json:"addresses,omitempty"`
	Orders        []Order       `json:"orders,omitempty"`
}

// MagicLinkToken is a single-use sign-in token delivered by email.
type MagicLinkToken struct {
	BaseModel
	Email     string     `gorm:"index" json:"email"`
	Token     string     `gorm:"uniqueIndex" json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
}

// PasswordResetToken tracks the forgot-password flow for legacy/local auth.
type PasswordResetToken struct {
	BaseModel
	Email     string     `gorm:"index" json:"email"`
	Token     string     `gorm:"uniqueIndex" json:"token"`
	Code      string     `json:"-"`
	Verified  bool       `json:"verified"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
}
