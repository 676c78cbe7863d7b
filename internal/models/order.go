package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment lifecycle states. At most one order per order number may reach
// "paid"; pending siblings are marked obsolete after the transition.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusObsolete = "obsolete"
)

// Order tracks a single checkout attempt. Several rows may share one
// order_number when a checkout is retried, which is why the column carries a
// plain index rather than a unique one.
type Order struct {
	BaseModel
	OrderNumber     string     `gorm:"index" json:"order_number"`
	PaymentStatus   string     `gorm:"index" json:"payment_status"`
	PaymentIntentID string     `gorm:"index" json:"payment_intent_id"`
	CustomerEmail   string     `gorm:"index" json:"customer_email"`
	UserID          *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	User            *User      `json:"user,omitempty"`
	TotalAmount     float64    `json:"total_amount"`
	Currency        string     `json:"currency"`

	ShippingName       string `json:"shipping_name"`
	ShippingLine1      string `json:"shipping_line1"`
	ShippingLine2      string `json:"shipping_line2"`
	ShippingCity       string `json:"shipping_city"`
	ShippingState      string `json:"shipping_state"`
	ShippingPostalCode string `json:"shipping_postal_code"`
	ShippingCountry    string `json:"shipping_country"`

	PaidAt         *time.Time  `json:"paid_at"`
	PaymentDetails []byte      `gorm:"type:jsonb" json:"payment_details,omitempty"`
	ObsoleteReason string      `json:"obsolete_reason,omitempty"`
	ObsoleteAt     *time.Time  `json:"obsolete_at,omitempty"`
	Items          []OrderItem `json:"items,omitempty"`
}

// OrderItem is a denormalized snapshot of a cart line at checkout time.
type OrderItem struct {
	BaseModel
	OrderID   uuid.UUID `gorm:"type:uuid;index" json:"order_id"`
	ProductID string    `json:"product_id"`
	VariantID string    `json:"variant_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	LineTotal float64   `json:"line_total"`
	Image     string    `json:"image"`
	Color     string    `json:"color"`
	Size      string    `json:"size"`
}
