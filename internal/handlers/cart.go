package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/services"
)

// CartHandler manages the server-side cart. Cart mutations reserve and
// release stock so the counters track in-flight checkouts.
type CartHandler struct {
	cart  *services.CartService
	stock *services.StockService
}

// NewCartHandler constructs CartHandler.
func NewCartHandler(cart *services.CartService, stock *services.StockService) *CartHandler {
	return &CartHandler{cart: cart, stock: stock}
}

// GetCart returns the cart for an email.
func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email is required")
	}

	cart, err := h.cart.Get(c.Context(), email)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": cart})
}

type addCartItemRequest struct {
	Email string            `json:"email"`
	Item  services.CartItem `json:"item"`
}

// AddItem reserves stock first, then merges the line into the cart. A failed
// reservation aborts the add so the cart never holds unreservable items.
func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	var req addCartItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Item.VariantID == "" || req.Item.ProductID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email, productId and variantId are required")
	}
	if req.Item.Quantity <= 0 {
		req.Item.Quantity = 1
	}

	if _, err := h.stock.AdjustByRef(c.Context(), req.Item.ProductID, req.Item.VariantID,
		models.StockTypeReserved, req.Item.Quantity, "cart add"); err != nil {
		if errors.Is(err, services.ErrInsufficientStock) {
			return fiber.NewError(fiber.StatusBadRequest, "insufficient stock")
		}
		return err
	}

	cart, err := h.cart.AddItem(c.Context(), req.Email, req.Item)
	if err != nil {
		// Give the reservation back; the cart mutation never happened.
		if _, relErr := h.stock.AdjustByRef(c.Context(), req.Item.ProductID, req.Item.VariantID,
			models.StockTypeReleased, req.Item.Quantity, "cart add rollback"); relErr != nil {
			log.Printf("[Cart] failed to release reservation after add error: %v", relErr)
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": cart})
}

type updateCartItemRequest struct {
	Email    string `json:"email"`
	Quantity int    `json:"quantity"`
}

// UpdateItem sets a line's quantity, reserving or releasing only the delta.
func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	variantID := c.Params("variantId")

	var req updateCartItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email is required")
	}

	current, err := h.cart.Get(c.Context(), req.Email)
	if err != nil {
		return err
	}

	var line *services.CartItem
	for i := range current.Items {
		if current.Items[i].VariantID == variantID {
			line = &current.Items[i]
			break
		}
	}
	if line == nil {
		return fiber.NewError(fiber.StatusNotFound, "cart item not found")
	}

	delta := req.Quantity - line.Quantity
	if delta > 0 {
		if _, err := h.stock.AdjustByRef(c.Context(), line.ProductID, line.VariantID,
			models.StockTypeReserved, delta, "cart quantity increase"); err != nil {
			if errors.Is(err, services.ErrInsufficientStock) {
				return fiber.NewError(fiber.StatusBadRequest, "insufficient stock")
			}
			return err
		}
	} else if delta < 0 {
		if _, err := h.stock.AdjustByRef(c.Context(), line.ProductID, line.VariantID,
			models.StockTypeReleased, -delta, "cart quantity decrease"); err != nil {
			log.Printf("[Cart] failed to release stock for %s: %v", line.VariantID, err)
		}
	}

	cart, _, err := h.cart.UpdateQuantity(c.Context(), req.Email, variantID, req.Quantity)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": cart})
}

// RemoveItem drops a line and releases its full reservation.
func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email is required")
	}

	cart, removed, err := h.cart.RemoveItem(c.Context(), email, c.Params("variantId"))
	if err != nil {
		if errors.Is(err, services.ErrCartItemNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "cart item not found")
		}
		return err
	}

	if _, err := h.stock.AdjustByRef(c.Context(), removed.ProductID, removed.VariantID,
		models.StockTypeReleased, removed.Quantity, "cart remove"); err != nil {
		log.Printf("[Cart] failed to release stock for %s: %v", removed.VariantID, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": cart})
}

// ClearCart empties the cart and releases every reservation it held.
func (h *CartHandler) ClearCart(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email is required")
	}

	items, err := h.cart.Clear(c.Context(), email)
	if err != nil {
		return err
	}

	for _, item := range items {
		if _, err := h.stock.AdjustByRef(c.Context(), item.ProductID, item.VariantID,
			models.StockTypeReleased, item.Quantity, "cart clear"); err != nil {
			log.Printf("[Cart] failed to release stock for %s: %v", item.VariantID, err)
		}
	}

	return c.JSON(fiber.Map{"success": true, "message": "cart cleared"})
}
