package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/services"
)

// StockHandler manages stock reservation endpoints on products.
type StockHandler struct {
	db    *gorm.DB
	stock *services.StockService
}

// NewStockHandler constructs StockHandler.
func NewStockHandler(db *gorm.DB, stock *services.StockService) *StockHandler {
	return &StockHandler{db: db, stock: stock}
}

type stockUpdateRequest struct {
	Quantity  int    `json:"quantity"`
	Type      string `json:"type"`
	Reason    string `json:"reason"`
	VariantID string `json:"variantId"`
}

// UpdateStock applies a reservation/release against a product's counter.
func (h *StockHandler) UpdateStock(c *fiber.Ctx) error {
	var req stockUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Quantity <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "quantity must be positive")
	}

	product, err := h.findProduct(c)
	if err != nil {
		return err
	}

	var variantID *uuid.UUID
	if req.VariantID != "" {
		parsed, err := uuid.Parse(req.VariantID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid variantId")
		}
		variantID = &parsed
	}

	result, err := h.stock.Adjust(c.Context(), product, variantID, req.Type, req.Quantity, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInsufficientStock):
			return fiber.NewError(fiber.StatusBadRequest, "insufficient stock")
		case errors.Is(err, services.ErrInvalidStockType):
			return fiber.NewError(fiber.StatusBadRequest, "invalid stock update type")
		case errors.Is(err, gorm.ErrRecordNotFound):
			return fiber.NewError(fiber.StatusNotFound, "product or variant not found")
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"newStock":    result.Stock,
		"stockStatus": result.StockStatus,
	})
}

// GetStock returns the current counter, status, threshold and recent history.
func (h *StockHandler) GetStock(c *fiber.Ctx) error {
	product, err := h.findProduct(c)
	if err != nil {
		return err
	}

	history, err := h.stock.History(c.Context(), product.ID, 20)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"stock":             product.Stock,
		"stockStatus":       product.StockStatus,
		"lowStockThreshold": product.LowStockThreshold,
		"stockHistory":      history,
	})
}

func (h *StockHandler) findProduct(c *fiber.Ctx) (*models.Product, error) {
	var product models.Product
	if err := h.db.First(&product, "slug = ?", c.Params("slug")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return nil, err
	}
	return &product, nil
}
