package models

import (
	"github.com/google/uuid"
)

// Stock availability buckets derived from the stock counter.
const (
	StockStatusInStock    = "in_stock"
	StockStatusLowStock   = "low_stock"
	StockStatusOutOfStock = "out_of_stock"
)

// Stock adjustment types accepted by the stock endpoint.
const (
	StockTypeReserved = "reserved"
	StockTypeReduced  = "reduced"
	StockTypeReleased = "released"
	StockTypeAdded    = "added"
)

type Product struct {
	BaseModel
	Slug              string           `gorm:"uniqueIndex" json:"slug"`
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	Price             float64          `json:"price"`
	Currency          string           `json:"currency"`
	Image             string           `json:"image"`
	IsActive          bool             `json:"is_active"`
	Stock             int              `json:"stock"`
	StockStatus       string           `json:"stock_status"`
	LowStockThreshold int              `json:"low_stock_threshold"`
	CategoryID        *uuid.UUID       `gorm:"type:uuid" json:"category_id"`
	Category          *Category        `json:"category,omitempty"`
	Variants          []ProductVariant `json:"variants,omitempty"`
}

// ProductVariant carries its own stock counter; when a product has variants
// the variant counter is authoritative for reservations.
type ProductVariant struct {
	BaseModel
	ProductID   uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	SKU         string    `json:"sku"`
	Label       string    `json:"label"`
	Color       string    `json:"color"`
	Size        string    `json:"size"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	StockStatus string    `json:"stock_status"`
	IsActive    bool      `json:"is_active"`
}

// StockHistory is an append-only log of stock adjustments.
type StockHistory struct {
	BaseModel
	ProductID     uuid.UUID  `gorm:"type:uuid;index" json:"product_id"`
	VariantID     *uuid.UUID `gorm:"type:uuid;index" json:"variant_id"`
	Type          string     `json:"type"`
	Quantity      int        `json:"quantity"`
	Reason        string     `json:"reason"`
	PreviousStock int        `json:"previous_stock"`
	NewStock      int        `json:"new_stock"`
}
