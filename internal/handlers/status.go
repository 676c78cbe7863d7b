package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/services"
)

// StatusHandler serves the client-polled order status endpoints. They are
// the read-repair path for webhooks that have not landed yet: if the gateway
// reports success while the store still shows pending, the paid transition
// is applied inline.
type StatusHandler struct {
	db        *gorm.DB
	gateway   services.PaymentGateway
	reconcile *services.ReconcileService
}

// NewStatusHandler constructs StatusHandler.
func NewStatusHandler(db *gorm.DB, gateway services.PaymentGateway, reconcile *services.ReconcileService) *StatusHandler {
	return &StatusHandler{db: db, gateway: gateway, reconcile: reconcile}
}

// CheckOrderStatus reconciles an order against the live gateway intent.
func (h *StatusHandler) CheckOrderStatus(c *fiber.Ctx) error {
	intentID := c.Query("payment_intent")
	if intentID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "payment_intent is required")
	}

	ctx := c.Context()

	intent, err := h.gateway.GetIntent(ctx, intentID)
	if err != nil {
		log.Printf("[Status] gateway lookup for intent %s failed: %v", intentID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch payment intent")
	}

	var order models.Order
	err = h.db.WithContext(ctx).Preload("Items").
		Where("payment_intent_id = ?", intentID).
		Order("created_at desc").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no order found for payment intent")
		}
		return err
	}

	// Read-repair: webhook has not landed but the gateway says succeeded.
	if intent.Status == services.IntentStatusSucceeded && order.PaymentStatus != models.PaymentStatusPaid {
		applied, err := h.reconcile.MarkOrderPaid(ctx, order.ID, intent.ID, services.PaymentDetailsSnapshot(intent))
		if err != nil {
			return err
		}
		if applied {
			log.Printf("[Status] self-healed order %s to paid from intent %s", order.OrderNumber, intentID)
		}
		if _, err := h.reconcile.MarkSiblingsObsolete(ctx, order.OrderNumber, order.ID); err != nil {
			return err
		}
		if err := h.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", order.ID).Error; err != nil {
			return err
		}
	}

	var pendingOrders []models.Order
	if err := h.db.WithContext(ctx).
		Where("order_number = ? AND payment_status = ?", order.OrderNumber, models.PaymentStatusPending).
		Find(&pendingOrders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"order":               order,
		"paymentIntentStatus": intent.Status,
		"pendingOrders":       pendingOrders,
		"timestamp":           time.Now().UTC(),
	})
}

// CheckOrderByNumber returns the newest order for a number with optional
// live gateway diagnostics.
func (h *StatusHandler) CheckOrderByNumber(c *fiber.Ctx) error {
	orderNumber := c.Query("orderNumber")
	if orderNumber == "" {
		return fiber.NewError(fiber.StatusBadRequest, "orderNumber is required")
	}

	ctx := c.Context()

	var orders []models.Order
	if err := h.db.WithContext(ctx).Preload("Items").
		Where("order_number = ?", orderNumber).
		Order("created_at desc").
		Find(&orders).Error; err != nil {
		return err
	}
	if len(orders) == 0 {
		return fiber.NewError(fiber.StatusNotFound, "no orders found for order number")
	}

	newest := orders[0]

	resp := fiber.Map{
		"order":     newest,
		"allOrders": orders,
		"timestamp": time.Now().UTC(),
	}

	if newest.PaymentIntentID != "" {
		if intent, err := h.gateway.GetIntent(ctx, newest.PaymentIntentID); err != nil {
			log.Printf("[Status] diagnostics lookup for intent %s failed: %v", newest.PaymentIntentID, err)
		} else {
			resp["paymentIntentStatus"] = intent.Status
			details := fiber.Map{
				"id":           intent.ID,
				"amount":       intent.Amount,
				"latestCharge": intent.LatestCharge,
			}
			if intent.LastPaymentError != nil {
				details["lastPaymentError"] = intent.LastPaymentError.Message
			}
			resp["paymentIntentDetails"] = details
		}
	}

	return c.JSON(resp)
}
