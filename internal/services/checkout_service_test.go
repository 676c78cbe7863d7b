package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/example/verdant/internal/models"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateIntent(ctx context.Context, params CreateIntentParams) (*PaymentIntent, error) {
	args := m.Called(ctx, params)
	if intent := args.Get(0); intent != nil {
		return intent.(*PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) GetIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	args := m.Called(ctx, id)
	if intent := args.Get(0); intent != nil {
		return intent.(*PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) UpdateIntentMetadata(ctx context.Context, id string, metadata map[string]string) (*PaymentIntent, error) {
	args := m.Called(ctx, id, metadata)
	if intent := args.Get(0); intent != nil {
		return intent.(*PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestCreatePaymentIntentLinksOrderUpFront(t *testing.T) {
	db := newTestDB(t)
	gateway := new(mockGateway)
	svc := NewCheckoutService(db, gateway)
	ctx := context.Background()

	var captured CreateIntentParams
	gateway.On("CreateIntent", mock.Anything, mock.MatchedBy(func(p CreateIntentParams) bool {
		captured = p
		return true
	})).Return(&PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret", Status: "requires_payment_method"}, nil)

	result, err := svc.CreatePaymentIntent(ctx, CheckoutInput{
		Amount:   12050,
		Currency: "USD",
		Email:    "Buyer@Example.com",
		Items: []models.OrderItem{
			{ProductID: "p1", VariantID: "v1", Name: "Linen Shirt", Quantity: 2, UnitPrice: 49.5},
		},
		Shipping: ShippingAddress{Line1: "12 Analytical Way", City: "London", PostalCode: "EC1A 1AA", Country: "GB"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", result.ClientSecret)
	assert.Equal(t, "pi_1", result.PaymentIntentID)
	assert.Empty(t, result.Warning)

	// The order row existed before the gateway call, so its id rode along in
	// the intent metadata from the start.
	assert.Equal(t, result.Order.ID.String(), captured.Metadata["orderId"])
	assert.Equal(t, result.Order.OrderNumber, captured.Metadata["orderNumber"])
	assert.Equal(t, "buyer@example.com", captured.Metadata["customerEmail"])
	assert.Equal(t, "guest", captured.Metadata["userId"])
	assert.EqualValues(t, 12050, captured.Amount)

	var order models.Order
	require.NoError(t, db.Preload("Items").First(&order, "id = ?", result.Order.ID).Error)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "pi_1", order.PaymentIntentID)
	assert.Equal(t, "buyer@example.com", order.CustomerEmail)
	assert.InDelta(t, 120.50, order.TotalAmount, 0.001)
	require.Len(t, order.Items, 1)
	assert.InDelta(t, 99.0, order.Items[0].LineTotal, 0.001)

	gateway.AssertExpectations(t)
}

func TestCreatePaymentIntentReusesPendingOrder(t *testing.T) {
	db := newTestDB(t)
	gateway := new(mockGateway)
	svc := NewCheckoutService(db, gateway)
	ctx := context.Background()

	gateway.On("CreateIntent", mock.Anything, mock.Anything).
		Return(&PaymentIntent{ID: "pi_1", ClientSecret: "cs_1"}, nil).Once()
	gateway.On("CreateIntent", mock.Anything, mock.Anything).
		Return(&PaymentIntent{ID: "pi_2", ClientSecret: "cs_2"}, nil).Once()

	first, err := svc.CreatePaymentIntent(ctx, CheckoutInput{
		Amount: 5000,
		Email:  "buyer@example.com",
		Items:  []models.OrderItem{{ProductID: "p1", VariantID: "v1", Quantity: 1, UnitPrice: 50}},
	})
	require.NoError(t, err)

	// A retry within the same checkout session carries the order number back
	// and must refresh the existing pending row, not create a sibling.
	second, err := svc.CreatePaymentIntent(ctx, CheckoutInput{
		Amount:      7000,
		Email:       "buyer@example.com",
		OrderNumber: first.Order.OrderNumber,
		Items: []models.OrderItem{
			{ProductID: "p1", VariantID: "v1", Quantity: 1, UnitPrice: 50},
			{ProductID: "p2", VariantID: "v2", Quantity: 1, UnitPrice: 20},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Where("order_number = ?", first.Order.OrderNumber).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var order models.Order
	require.NoError(t, db.Preload("Items").First(&order, "id = ?", first.Order.ID).Error)
	assert.InDelta(t, 70.0, order.TotalAmount, 0.001)
	assert.Len(t, order.Items, 2)
	assert.Equal(t, "pi_2", order.PaymentIntentID)
}

func TestCreatePaymentIntentGatewayFailureLeavesOrderPending(t *testing.T) {
	db := newTestDB(t)
	gateway := new(mockGateway)
	svc := NewCheckoutService(db, gateway)
	ctx := context.Background()

	gateway.On("CreateIntent", mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	_, err := svc.CreatePaymentIntent(ctx, CheckoutInput{
		Amount: 5000,
		Email:  "buyer@example.com",
		Items:  []models.OrderItem{{ProductID: "p1", VariantID: "v1", Quantity: 1, UnitPrice: 50}},
	})
	require.Error(t, err)

	// The pending order survives; a retry with the same number reuses it.
	var count int64
	require.NoError(t, db.Model(&models.Order{}).Where("payment_status = ?", models.PaymentStatusPending).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreatePaymentIntentRejectsEmptyCart(t *testing.T) {
	db := newTestDB(t)
	svc := NewCheckoutService(db, new(mockGateway))

	_, err := svc.CreatePaymentIntent(context.Background(), CheckoutInput{Amount: 100, Email: "buyer@example.com"})
	assert.Error(t, err)
}
