package handlers

import (
	"crypto/subtle"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/config"
	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/services"
)

// NotificationHandler exposes a manual resend endpoint for transactional
// email, used by the storefront's admin tooling.
type NotificationHandler struct {
	db    *gorm.DB
	cfg   *config.Config
	email *services.EmailService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(db *gorm.DB, cfg *config.Config, email *services.EmailService) *NotificationHandler {
	return &NotificationHandler{db: db, cfg: cfg, email: email}
}

type sendOrderConfirmationRequest struct {
	OrderNumber string `json:"orderNumber"`
	Email       string `json:"email"`
}

// SendOrderConfirmation re-sends the confirmation email for a paid order.
// The request must carry the shared secret header.
func (h *NotificationHandler) SendOrderConfirmation(c *fiber.Ctx) error {
	secret := c.Get("X-Notification-Secret")
	if h.cfg.RevalidateSecret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(h.cfg.RevalidateSecret)) != 1 {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req sendOrderConfirmationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.OrderNumber == "" {
		return fiber.NewError(fiber.StatusBadRequest, "orderNumber is required")
	}

	var order models.Order
	if err := h.db.Preload("Items").
		Where("order_number = ? AND payment_status = ?", req.OrderNumber, models.PaymentStatusPaid).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "paid order not found")
		}
		return err
	}

	email := services.NormalizeEmail(req.Email)
	if email == "" {
		email = order.CustomerEmail
	}
	if email == "" {
		return fiber.NewError(fiber.StatusBadRequest, "no recipient email for order")
	}

	shipping := services.ShippingAddress{
		Name:       order.ShippingName,
		Line1:      order.ShippingLine1,
		Line2:      order.ShippingLine2,
		City:       order.ShippingCity,
		State:      order.ShippingState,
		PostalCode: order.ShippingPostalCode,
		Country:    order.ShippingCountry,
	}
	conf := buildOrderConfirmation(&order, email, shipping)

	if err := h.email.SendOrderConfirmation(conf); err != nil {
		log.Printf("[Notifications] confirmation resend for %s failed: %v", order.OrderNumber, err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to send email")
	}

	return c.JSON(fiber.Map{"success": true, "message": "confirmation sent"})
}
