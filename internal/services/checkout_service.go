package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/utils"
)

// CheckoutService orchestrates payment-intent creation: one order row per
// checkout session, one gateway intent per order, linked by metadata.
type CheckoutService struct {
	db      *gorm.DB
	gateway PaymentGateway
}

func NewCheckoutService(db *gorm.DB, gateway PaymentGateway) *CheckoutService {
	return &CheckoutService{db: db, gateway: gateway}
}

// CheckoutInput captures a validated create-payment-intent request.
type CheckoutInput struct {
	Amount      int64 // smallest currency unit
	Currency    string
	Email       string
	OrderNumber string
	UserID      *uuid.UUID
	Items       []models.OrderItem
	Shipping    ShippingAddress
}

// CheckoutResult is returned to the client driving the hosted payment UI.
type CheckoutResult struct {
	Order           *models.Order
	ClientSecret    string
	PaymentIntentID string
	Warning         string
}

// CreatePaymentIntent creates or refreshes the pending order for the
// checkout session, then creates the gateway intent with complete metadata
// in a single call. The order row exists first so the intent never needs a
// metadata back-fill round trip.
func (s *CheckoutService) CreatePaymentIntent(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if len(in.Items) == 0 {
		return nil, errors.New("cart is empty")
	}

	email := NormalizeEmail(in.Email)
	orderNumber := in.OrderNumber
	if orderNumber == "" {
		orderNumber = utils.NewOrderNumber()
	}
	currency := in.Currency
	if currency == "" {
		currency = "usd"
	}

	order, err := s.upsertPendingOrder(ctx, orderNumber, email, currency, in)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"customerEmail": email,
		"orderNumber":   orderNumber,
		"orderId":       order.ID.String(),
	}
	if in.UserID != nil {
		metadata["userId"] = in.UserID.String()
	} else {
		metadata["userId"] = "guest"
	}

	intent, err := s.gateway.CreateIntent(ctx, CreateIntentParams{
		Amount:       in.Amount,
		Currency:     currency,
		ReceiptEmail: email,
		Metadata:     metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent for order %s: %w", orderNumber, err)
	}

	result := &CheckoutResult{
		Order:           order,
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
	}

	// Bookkeeping failure must not block the customer from paying: return
	// the client secret with a warning and let the poller reconcile later.
	if err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("payment_intent_id", intent.ID).Error; err != nil {
		log.Printf("[Checkout] failed to store intent %s on order %s: %v", intent.ID, order.ID, err)
		result.Warning = "order bookkeeping incomplete; payment can proceed"
		return result, nil
	}

	order.PaymentIntentID = intent.ID
	return result, nil
}

// upsertPendingOrder refreshes the existing pending order for the number or
// creates one. Update-before-create inside a transaction is the idempotency
// guard against UI retries within a single checkout session.
func (s *CheckoutService) upsertPendingOrder(ctx context.Context, orderNumber, email, currency string, in CheckoutInput) (*models.Order, error) {
	var order models.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("order_number = ? AND payment_status = ?", orderNumber, models.PaymentStatusPending).
			First(&order).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		total := float64(in.Amount) / 100

		if err == nil {
			updates := map[string]any{
				"customer_email":       email,
				"total_amount":         total,
				"currency":             currency,
				"shipping_name":        in.Shipping.Name,
				"shipping_line1":       in.Shipping.Line1,
				"shipping_line2":       in.Shipping.Line2,
				"shipping_city":        in.Shipping.City,
				"shipping_state":       in.Shipping.State,
				"shipping_postal_code": in.Shipping.PostalCode,
				"shipping_country":     in.Shipping.Country,
			}
			if in.UserID != nil {
				updates["user_id"] = *in.UserID
			}
			if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
				return err
			}

			// Replace the line-item snapshot with the refreshed cart.
			if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderItem{}).Error; err != nil {
				return err
			}
			items := cloneItems(in.Items, order.ID)
			if err := tx.Create(&items).Error; err != nil {
				return err
			}

			return tx.Preload("Items").First(&order, "id = ?", order.ID).Error
		}

		order = models.Order{
			OrderNumber:        orderNumber,
			PaymentStatus:      models.PaymentStatusPending,
			CustomerEmail:      email,
			UserID:             in.UserID,
			TotalAmount:        total,
			Currency:           currency,
			ShippingName:       in.Shipping.Name,
			ShippingLine1:      in.Shipping.Line1,
			ShippingLine2:      in.Shipping.Line2,
			ShippingCity:       in.Shipping.City,
			ShippingState:      in.Shipping.State,
			ShippingPostalCode: in.Shipping.PostalCode,
			ShippingCountry:    in.Shipping.Country,
			Items:              cloneItems(in.Items, uuid.Nil),
		}

		return tx.Create(&order).Error
	})
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func cloneItems(items []models.OrderItem, orderID uuid.UUID) []models.OrderItem {
	out := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		lineTotal := item.LineTotal
		if lineTotal == 0 {
			lineTotal = item.UnitPrice * float64(item.Quantity)
		}
		out = append(out, models.OrderItem{
			OrderID:   orderID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: lineTotal,
			Image:     item.Image,
			Color:     item.Color,
			Size:      item.Size,
		})
	}
	return out
}

// PaymentDetailsSnapshot serializes the gateway intent for storage on the
// order row.
func PaymentDetailsSnapshot(intent *PaymentIntent) []byte {
	raw, err := json.Marshal(intent)
	if err != nil {
		return nil
	}
	return raw
}
