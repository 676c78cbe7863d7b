package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/models"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidStockType  = errors.New("invalid stock adjustment type")
)

// StockService adjusts stock counters with single conditional updates so
// concurrent reservations can never drive a counter negative.
type StockService struct {
	db               *gorm.DB
	defaultThreshold int
}

func NewStockService(db *gorm.DB, defaultThreshold int) *StockService {
	return &StockService{db: db, defaultThreshold: defaultThreshold}
}

// StockResult reports the post-adjustment state.
type StockResult struct {
	Stock       int    `json:"stock"`
	StockStatus string `json:"stock_status"`
}

// Adjust applies a reservation/release to the product or variant counter.
// Decrements are conditional (stock >= n) in the same statement that
// subtracts, so a stale read can never oversell; zero rows affected means
// insufficient stock and the counter is untouched.
func (s *StockService) Adjust(ctx context.Context, product *models.Product, variantID *uuid.UUID, adjType string, quantity int, reason string) (*StockResult, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	var decrement bool
	switch adjType {
	case models.StockTypeReserved, models.StockTypeReduced:
		decrement = true
	case models.StockTypeReleased, models.StockTypeAdded:
		decrement = false
	default:
		return nil, ErrInvalidStockType
	}

	delta := quantity
	if decrement {
		delta = -quantity
	}

	threshold := product.LowStockThreshold
	if threshold <= 0 {
		threshold = s.defaultThreshold
	}

	var newStock int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var query *gorm.DB
		if variantID != nil {
			query = tx.Model(&models.ProductVariant{}).Where("id = ? AND product_id = ?", *variantID, product.ID)
		} else {
			query = tx.Model(&models.Product{}).Where("id = ?", product.ID)
		}
		if decrement {
			query = query.Where("stock >= ?", quantity)
		}

		res := query.Update("stock", gorm.Expr("stock + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if decrement {
				return ErrInsufficientStock
			}
			return gorm.ErrRecordNotFound
		}

		if variantID != nil {
			var variant models.ProductVariant
			if err := tx.Select("stock").First(&variant, "id = ?", *variantID).Error; err != nil {
				return err
			}
			newStock = variant.Stock
			if err := tx.Model(&models.ProductVariant{}).Where("id = ?", *variantID).
				Update("stock_status", StockStatusFor(newStock, threshold)).Error; err != nil {
				return err
			}
		} else {
			var p models.Product
			if err := tx.Select("stock").First(&p, "id = ?", product.ID).Error; err != nil {
				return err
			}
			newStock = p.Stock
			if err := tx.Model(&models.Product{}).Where("id = ?", product.ID).
				Update("stock_status", StockStatusFor(newStock, threshold)).Error; err != nil {
				return err
			}
		}

		history := models.StockHistory{
			ProductID:     product.ID,
			VariantID:     variantID,
			Type:          adjType,
			Quantity:      quantity,
			Reason:        reason,
			PreviousStock: newStock - delta,
			NewStock:      newStock,
		}

		return tx.Create(&history).Error
	})
	if err != nil {
		return nil, err
	}

	return &StockResult{Stock: newStock, StockStatus: StockStatusFor(newStock, threshold)}, nil
}

// AdjustByRef resolves product/variant ids carried on cart lines before
// adjusting. Variant ids that do not parse as UUIDs are treated as absent.
func (s *StockService) AdjustByRef(ctx context.Context, productID, variantID, adjType string, quantity int, reason string) (*StockResult, error) {
	pid, err := uuid.Parse(productID)
	if err != nil {
		return nil, fmt.Errorf("invalid product id %q", productID)
	}

	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, "id = ?", pid).Error; err != nil {
		return nil, err
	}

	var vid *uuid.UUID
	if variantID != "" && variantID != productID {
		if parsed, err := uuid.Parse(variantID); err == nil {
			var count int64
			if err := s.db.WithContext(ctx).Model(&models.ProductVariant{}).
				Where("id = ? AND product_id = ?", parsed, pid).Count(&count).Error; err != nil {
				return nil, err
			}
			if count > 0 {
				vid = &parsed
			}
		}
	}

	return s.Adjust(ctx, &product, vid, adjType, quantity, reason)
}

// History returns the most recent stock adjustments, newest first.
func (s *StockService) History(ctx context.Context, productID uuid.UUID, limit int) ([]models.StockHistory, error) {
	if limit <= 0 {
		limit = 20
	}

	var entries []models.StockHistory
	err := s.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at desc").
		Limit(limit).
		Find(&entries).Error

	return entries, err
}

// StockStatusFor buckets a counter value against the low-stock threshold.
func StockStatusFor(stock, threshold int) string {
	switch {
	case stock <= 0:
		return models.StockStatusOutOfStock
	case stock <= threshold:
		return models.StockStatusLowStock
	default:
		return models.StockStatusInStock
	}
}
