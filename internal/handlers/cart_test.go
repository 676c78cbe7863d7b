package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/services"
)

func newCartApp(t *testing.T, db *gorm.DB) (*fiber.App, *services.CartService) {
	t.Helper()

	cart, _ := newTestCartService(t)
	stock := services.NewStockService(db, 5)
	h := NewCartHandler(cart, stock)

	app := fiber.New()
	app.Get("/api/cart", h.GetCart)
	app.Post("/api/cart/items", h.AddItem)
	app.Patch("/api/cart/items/:variantId", h.UpdateItem)
	app.Delete("/api/cart/items/:variantId", h.RemoveItem)
	app.Delete("/api/cart", h.ClearCart)

	return app, cart
}

func seedCartProduct(t *testing.T, db *gorm.DB, stock int) models.Product {
	t.Helper()

	product := models.Product{
		Slug:              "linen-shirt",
		Name:              "Linen Shirt",
		Price:             49.5,
		Stock:             stock,
		StockStatus:       models.StockStatusInStock,
		LowStockThreshold: 2,
		IsActive:          true,
	}
	require.NoError(t, db.Create(&product).Error)
	return product
}

func TestCartAddItemReservesStock(t *testing.T) {
	db := newTestDB(t)
	app, _ := newCartApp(t, db)
	product := seedCartProduct(t, db, 5)

	resp := postJSON(t, app, "/api/cart/items", fiber.Map{
		"email": "buyer@example.com",
		"item": fiber.Map{
			"product_id": product.ID.String(),
			"variant_id": product.ID.String(),
			"name":       "Linen Shirt",
			"quantity":   2,
		},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var loaded models.Product
	require.NoError(t, db.First(&loaded, "id = ?", product.ID).Error)
	assert.Equal(t, 3, loaded.Stock)

	var history []models.StockHistory
	require.NoError(t, db.Where("product_id = ?", product.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, models.StockTypeReserved, history[0].Type)
	assert.Equal(t, "cart add", history[0].Reason)
}

func TestCartAddItemInsufficientStock(t *testing.T) {
	db := newTestDB(t)
	app, cart := newCartApp(t, db)
	product := seedCartProduct(t, db, 1)

	resp := postJSON(t, app, "/api/cart/items", fiber.Map{
		"email": "buyer@example.com",
		"item": fiber.Map{
			"product_id": product.ID.String(),
			"variant_id": product.ID.String(),
			"quantity":   3,
		},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Nothing reserved, nothing carted.
	var loaded models.Product
	require.NoError(t, db.First(&loaded, "id = ?", product.ID).Error)
	assert.Equal(t, 1, loaded.Stock)

	held, err := cart.Get(context.Background(), "buyer@example.com")
	require.NoError(t, err)
	assert.Empty(t, held.Items)
}

func TestCartUpdateItemAdjustsOnlyDelta(t *testing.T) {
	db := newTestDB(t)
	app, _ := newCartApp(t, db)
	product := seedCartProduct(t, db, 10)

	resp := postJSON(t, app, "/api/cart/items", fiber.Map{
		"email": "buyer@example.com",
		"item": fiber.Map{
			"product_id": product.ID.String(),
			"variant_id": product.ID.String(),
			"quantity":   2,
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPatch, "/api/cart/items/"+product.ID.String(), jsonBody(t, fiber.Map{
		"email":    "buyer@example.com",
		"quantity": 5,
	}))
	req.Header.Set("Content-Type", "application/json")
	updateResp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, updateResp.StatusCode)

	var loaded models.Product
	require.NoError(t, db.First(&loaded, "id = ?", product.ID).Error)
	assert.Equal(t, 5, loaded.Stock, "only the +3 delta is reserved")

	// Shrinking the line releases the difference.
	req = httptest.NewRequest(http.MethodPatch, "/api/cart/items/"+product.ID.String(), jsonBody(t, fiber.Map{
		"email":    "buyer@example.com",
		"quantity": 1,
	}))
	req.Header.Set("Content-Type", "application/json")
	updateResp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, updateResp.StatusCode)

	require.NoError(t, db.First(&loaded, "id = ?", product.ID).Error)
	assert.Equal(t, 9, loaded.Stock)
}

func TestCartClearReleasesReservations(t *testing.T) {
	db := newTestDB(t)
	app, _ := newCartApp(t, db)
	product := seedCartProduct(t, db, 5)

	resp := postJSON(t, app, "/api/cart/items", fiber.Map{
		"email": "buyer@example.com",
		"item": fiber.Map{
			"product_id": product.ID.String(),
			"variant_id": product.ID.String(),
			"quantity":   4,
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req := httptest.NewRequest(http.MethodDelete, "/api/cart?email=buyer@example.com", nil)
	clearResp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, clearResp.StatusCode)

	var loaded models.Product
	require.NoError(t, db.First(&loaded, "id = ?", product.ID).Error)
	assert.Equal(t, 5, loaded.Stock)
}
