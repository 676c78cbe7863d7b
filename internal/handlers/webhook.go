package handlers

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/services"
)

// WebhookHandler consumes gateway webhook events and drives the order/user
// state transitions for successful payments.
type WebhookHandler struct {
	db         *gorm.DB
	reconcile  *services.ReconcileService
	cart       *services.CartService
	email      *services.EmailService
	revalidate *services.RevalidateService
}

// NewWebhookHandler constructs WebhookHandler.
func NewWebhookHandler(db *gorm.DB, reconcile *services.ReconcileService, cart *services.CartService, email *services.EmailService, revalidate *services.RevalidateService) *WebhookHandler {
	return &WebhookHandler{
		db:         db,
		reconcile:  reconcile,
		cart:       cart,
		email:      email,
		revalidate: revalidate,
	}
}

// HandleStripeEvent processes a signature-verified gateway event. A 500
// response makes the gateway retry the whole event, so every mutation in the
// success path must tolerate replay.
func (h *WebhookHandler) HandleStripeEvent(c *fiber.Ctx) error {
	event, err := services.ParseWebhookEvent(c.Body())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid event payload")
	}

	if event.Type != services.EventPaymentIntentSucceeded {
		return c.JSON(fiber.Map{"received": true})
	}

	intent, err := services.ParsePaymentIntent(event.Data.Object)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payment intent payload")
	}

	orderID, err := h.handlePaymentSucceeded(c, intent)
	if err != nil {
		log.Printf("[Webhook] event %s (intent %s) failed: %v", event.ID, intent.ID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "event processing failed")
	}

	return c.JSON(fiber.Map{"received": true, "orderId": orderID})
}

func (h *WebhookHandler) handlePaymentSucceeded(c *fiber.Ctx, intent *services.PaymentIntent) (uuid.UUID, error) {
	ctx := c.Context()

	rawOrderID := intent.Metadata["orderId"]
	if rawOrderID == "" {
		return uuid.Nil, fmt.Errorf("intent %s missing orderId metadata", intent.ID)
	}
	orderID, err := uuid.Parse(rawOrderID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("intent %s has malformed orderId %q", intent.ID, rawOrderID)
	}

	var order models.Order
	if err := h.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, fmt.Errorf("order %s not found for intent %s", orderID, intent.ID)
		}
		return uuid.Nil, err
	}

	email := intent.Metadata["customerEmail"]
	if email == "" {
		email = order.CustomerEmail
	}

	user, err := h.reconcile.FindOrCreateUser(ctx, email, order.ShippingName)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve user for %s: %w", email, err)
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
	if err := h.reconcile.SaveShippingAddress(ctx, user.ID, shipping); err != nil {
		return uuid.Nil, fmt.Errorf("save shipping address: %w", err)
	}

	applied, err := h.reconcile.MarkOrderPaid(ctx, order.ID, intent.ID, services.PaymentDetailsSnapshot(intent))
	if err != nil {
		return uuid.Nil, fmt.Errorf("mark order paid: %w", err)
	}
	if !applied {
		log.Printf("[Webhook] order %s already paid, replay is a no-op", order.ID)
	}

	if order.UserID == nil {
		if err := h.db.WithContext(ctx).Model(&models.Order{}).
			Where("id = ?", order.ID).
			Update("user_id", user.ID).Error; err != nil {
			log.Printf("[Webhook] failed to attach user %s to order %s: %v", user.ID, order.ID, err)
		}
	}

	obsoleted, err := h.reconcile.MarkSiblingsObsolete(ctx, order.OrderNumber, order.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("mark siblings obsolete: %w", err)
	}
	if obsoleted > 0 {
		log.Printf("[Webhook] marked %d sibling orders obsolete for %s", obsoleted, order.OrderNumber)
	}

	// Best-effort side effects: never fail the webhook over these.
	if _, err := h.cart.Clear(ctx, email); err != nil {
		log.Printf("[Webhook] failed to clear cart for %s: %v", email, err)
	}

	if applied {
		conf := buildOrderConfirmation(&order, email, shipping)
		go func() {
			if err := h.email.SendOrderConfirmation(conf); err != nil {
				log.Printf("[Webhook] confirmation email for %s failed: %v", order.OrderNumber, err)
			}
		}()
	}

	go func() {
		if err := h.revalidate.Revalidate("/account"); err != nil {
			log.Printf("[Webhook] account revalidation failed: %v", err)
		}
	}()

	return order.ID, nil
}

func buildOrderConfirmation(order *models.Order, email string, shipping services.ShippingAddress) services.OrderConfirmation {
	conf := services.OrderConfirmation{
		OrderNumber: order.OrderNumber,
		Email:       email,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		Shipping:    shipping,
	}
	for _, item := range order.Items {
		conf.Items = append(conf.Items, services.OrderConfirmationItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return conf
}
