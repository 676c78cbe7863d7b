package handlers

import (
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/middleware"
	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/services"
)

// CheckoutHandler manages the payment-intent orchestration endpoint.
type CheckoutHandler struct {
	db        *gorm.DB
	checkout  *services.CheckoutService
	reconcile *services.ReconcileService
	validate  *validator.Validate
}

// NewCheckoutHandler constructs CheckoutHandler.
func NewCheckoutHandler(db *gorm.DB, checkout *services.CheckoutService, reconcile *services.ReconcileService) *CheckoutHandler {
	return &CheckoutHandler{
		db:        db,
		checkout:  checkout,
		reconcile: reconcile,
		validate:  validator.New(),
	}
}

type checkoutItemRequest struct {
	ProductID string  `json:"productId" validate:"required"`
	VariantID string  `json:"variantId" validate:"required"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	Image     string  `json:"image"`
	Color     string  `json:"color"`
	Size      string  `json:"size"`
}

type shippingAddressRequest struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type createPaymentIntentRequest struct {
	Amount          int64                   `json:"amount" validate:"required,gt=0"`
	Email           string                  `json:"email" validate:"required,email"`
	Currency        string                  `json:"currency"`
	CartItems       []checkoutItemRequest   `json:"cartItems" validate:"required,min=1,dive"`
	ShippingAddress *shippingAddressRequest `json:"shippingAddress"`
	OrderNumber     string                  `json:"orderNumber"`
}

// CreatePaymentIntent creates or refreshes the pending order for the
// checkout session and returns a gateway client secret for the hosted
// payment UI. Guests and signed-in customers both land here.
func (h *CheckoutHandler) CreatePaymentIntent(c *fiber.Ctx) error {
	var req createPaymentIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "amount, email and a non-empty cart are required")
	}

	input := services.CheckoutInput{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Email:       req.Email,
		OrderNumber: req.OrderNumber,
	}

	if req.ShippingAddress != nil {
		input.Shipping = services.ShippingAddress{
			Name:       req.ShippingAddress.Name,
			Line1:      req.ShippingAddress.Line1,
			Line2:      req.ShippingAddress.Line2,
			City:       req.ShippingAddress.City,
			State:      req.ShippingAddress.State,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		}
	}

	for _, item := range req.CartItems {
		input.Items = append(input.Items, models.OrderItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			UnitPrice: item.Price,
			Quantity:  item.Quantity,
			Image:     item.Image,
			Color:     item.Color,
			Size:      item.Size,
		})
	}

	// Authenticated sessions get a user row attached; guests check out with
	// email only.
	if userID, ok := middleware.GetCurrentUserID(c); ok {
		user, err := h.reconcile.FindOrCreateUser(c.Context(), req.Email, "")
		if err != nil {
			log.Printf("[Checkout] failed to resolve user for %s: %v", userID, err)
		} else {
			input.UserID = &user.ID
		}
	}

	result, err := h.checkout.CreatePaymentIntent(c.Context(), input)
	if err != nil {
		log.Printf("[Checkout] create payment intent failed for order %q: %v", req.OrderNumber, err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to create payment intent")
	}

	resp := fiber.Map{
		"clientSecret":    result.ClientSecret,
		"paymentIntentId": result.PaymentIntentID,
		"orderNumber":     result.Order.OrderNumber,
		"orderId":         result.Order.ID,
	}
	if result.Warning != "" {
		resp["warning"] = result.Warning
	}

	return c.JSON(resp)
}
