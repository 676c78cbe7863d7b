package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/verdant/internal/models"
)

func TestStockAdjust(t *testing.T) {
	db := newTestDB(t)
	svc := NewStockService(db, 5)
	ctx := context.Background()

	product := models.Product{Slug: "linen-shirt", Name: "Linen Shirt", Stock: 10, StockStatus: models.StockStatusInStock, LowStockThreshold: 3, IsActive: true}
	require.NoError(t, db.Create(&product).Error)

	t.Run("reserve decrements and records history", func(t *testing.T) {
		result, err := svc.Adjust(ctx, &product, nil, models.StockTypeReserved, 4, "cart add")
		require.NoError(t, err)
		assert.Equal(t, 6, result.Stock)
		assert.Equal(t, models.StockStatusInStock, result.StockStatus)

		history, err := svc.History(ctx, product.ID, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, models.StockTypeReserved, history[0].Type)
		assert.Equal(t, 10, history[0].PreviousStock)
		assert.Equal(t, 6, history[0].NewStock)
		assert.Equal(t, "cart add", history[0].Reason)
	})

	t.Run("low stock threshold buckets status", func(t *testing.T) {
		result, err := svc.Adjust(ctx, &product, nil, models.StockTypeReserved, 4, "cart add")
		require.NoError(t, err)
		assert.Equal(t, 2, result.Stock)
		assert.Equal(t, models.StockStatusLowStock, result.StockStatus)
	})

	t.Run("oversell is rejected and counter untouched", func(t *testing.T) {
		_, err := svc.Adjust(ctx, &product, nil, models.StockTypeReserved, 3, "cart add")
		assert.ErrorIs(t, err, ErrInsufficientStock)

		var loaded models.Product
		require.NoError(t, db.First(&loaded, "id = ?", product.ID).Error)
		assert.Equal(t, 2, loaded.Stock)
	})

	t.Run("release restores the counter", func(t *testing.T) {
		result, err := svc.Adjust(ctx, &product, nil, models.StockTypeReleased, 2, "cart remove")
		require.NoError(t, err)
		assert.Equal(t, 4, result.Stock)
	})

	t.Run("drain to zero reports out of stock", func(t *testing.T) {
		result, err := svc.Adjust(ctx, &product, nil, models.StockTypeReduced, 4, "order paid")
		require.NoError(t, err)
		assert.Equal(t, 0, result.Stock)
		assert.Equal(t, models.StockStatusOutOfStock, result.StockStatus)
	})

	t.Run("invalid type is rejected", func(t *testing.T) {
		_, err := svc.Adjust(ctx, &product, nil, "teleported", 1, "")
		assert.ErrorIs(t, err, ErrInvalidStockType)
	})

	t.Run("non-positive quantity is rejected", func(t *testing.T) {
		_, err := svc.Adjust(ctx, &product, nil, models.StockTypeAdded, 0, "")
		assert.Error(t, err)
	})
}

func TestStockAdjustVariantCounter(t *testing.T) {
	db := newTestDB(t)
	svc := NewStockService(db, 5)
	ctx := context.Background()

	product := models.Product{Slug: "wool-coat", Name: "Wool Coat", Stock: 100, LowStockThreshold: 3, IsActive: true}
	require.NoError(t, db.Create(&product).Error)
	variant := models.ProductVariant{ProductID: product.ID, SKU: "WC-M", Size: "M", Stock: 2, IsActive: true}
	require.NoError(t, db.Create(&variant).Error)

	result, err := svc.Adjust(ctx, &product, &variant.ID, models.StockTypeReserved, 2, "cart add")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Stock)
	assert.Equal(t, models.StockStatusOutOfStock, result.StockStatus)

	// The variant counter is authoritative; the product counter is untouched.
	var loadedProduct models.Product
	require.NoError(t, db.First(&loadedProduct, "id = ?", product.ID).Error)
	assert.Equal(t, 100, loadedProduct.Stock)

	_, err = svc.Adjust(ctx, &product, &variant.ID, models.StockTypeReserved, 1, "cart add")
	assert.ErrorIs(t, err, ErrInsufficientStock)

	history, err := svc.History(ctx, product.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].VariantID)
	assert.Equal(t, variant.ID, *history[0].VariantID)
}

func TestStockAdjustByRef(t *testing.T) {
	db := newTestDB(t)
	svc := NewStockService(db, 5)
	ctx := context.Background()

	product := models.Product{Slug: "canvas-tote", Name: "Canvas Tote", Stock: 5, LowStockThreshold: 2, IsActive: true}
	require.NoError(t, db.Create(&product).Error)

	// A variant id equal to the product id means "no variant" on cart lines.
	result, err := svc.AdjustByRef(ctx, product.ID.String(), product.ID.String(), models.StockTypeReserved, 1, "cart add")
	require.NoError(t, err)
	assert.Equal(t, 4, result.Stock)

	_, err = svc.AdjustByRef(ctx, "not-a-uuid", "", models.StockTypeReserved, 1, "cart add")
	assert.Error(t, err)
}

func TestRepeatedReservationsNeverOversell(t *testing.T) {
	db := newTestDB(t)
	svc := NewStockService(db, 5)
	ctx := context.Background()

	product := models.Product{Slug: "limited-print", Name: "Limited Print", Stock: 5, LowStockThreshold: 1, IsActive: true}
	require.NoError(t, db.Create(&product).Error)

	// The guard lives in the conditional update, not in the caller's view of
	// the counter: a stale product snapshot can never push stock negative.
	succeeded := 0
	for i := 0; i < 10; i++ {
		if _, err := svc.Adjust(ctx, &product, nil, models.StockTypeReserved, 1, "cart add"); err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientStock)
		}
	}
	assert.Equal(t, 5, succeeded)

	var loaded models.Product
	require.NoError(t, db.First(&loaded, "id = ?", product.ID).Error)
	assert.Equal(t, 0, loaded.Stock)
}

func TestStockStatusFor(t *testing.T) {
	assert.Equal(t, models.StockStatusOutOfStock, StockStatusFor(0, 5))
	assert.Equal(t, models.StockStatusOutOfStock, StockStatusFor(-1, 5))
	assert.Equal(t, models.StockStatusLowStock, StockStatusFor(5, 5))
	assert.Equal(t, models.StockStatusInStock, StockStatusFor(6, 5))
}
