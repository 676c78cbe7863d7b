package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/services"
)

func newStatusApp(t *testing.T, db *gorm.DB, gateway *stubGateway) *fiber.App {
	t.Helper()

	h := NewStatusHandler(db, gateway, services.NewReconcileService(db))

	app := fiber.New()
	app.Get("/api/check-order-status", h.CheckOrderStatus)
	app.Get("/api/check-order-by-number", h.CheckOrderByNumber)

	return app
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestCheckOrderStatusReadRepair(t *testing.T) {
	db := newTestDB(t)
	gateway := newStubGateway()
	gateway.intents["pi_600"] = &services.PaymentIntent{ID: "pi_600", Status: services.IntentStatusSucceeded, Amount: 5000}
	app := newStatusApp(t, db, gateway)

	order := models.Order{
		OrderNumber:     "ORD-600",
		PaymentStatus:   models.PaymentStatusPending,
		PaymentIntentID: "pi_600",
		CustomerEmail:   "buyer@example.com",
	}
	sibling := models.Order{OrderNumber: "ORD-600", PaymentStatus: models.PaymentStatusPending, CustomerEmail: "buyer@example.com"}
	require.NoError(t, db.Create(&order).Error)
	require.NoError(t, db.Create(&sibling).Error)

	req := httptest.NewRequest(http.MethodGet, "/api/check-order-status?payment_intent=pi_600", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, services.IntentStatusSucceeded, body["paymentIntentStatus"])
	assert.Empty(t, body["pendingOrders"], "read-repair must leave no pending siblings")

	returned := body["order"].(map[string]any)
	assert.Equal(t, models.PaymentStatusPaid, returned["payment_status"])

	// The poller healed the store: order paid, sibling obsolete.
	var loaded models.Order
	require.NoError(t, db.First(&loaded, "id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentStatusPaid, loaded.PaymentStatus)
	require.NotNil(t, loaded.PaidAt)

	require.NoError(t, db.First(&loaded, "id = ?", sibling.ID).Error)
	assert.Equal(t, models.PaymentStatusObsolete, loaded.PaymentStatus)
}

func TestCheckOrderStatusAlreadyPaidIsStable(t *testing.T) {
	db := newTestDB(t)
	gateway := newStubGateway()
	gateway.intents["pi_601"] = &services.PaymentIntent{ID: "pi_601", Status: services.IntentStatusSucceeded}
	app := newStatusApp(t, db, gateway)

	paidAt := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	order := models.Order{
		OrderNumber:     "ORD-601",
		PaymentStatus:   models.PaymentStatusPaid,
		PaymentIntentID: "pi_601",
		PaidAt:          &paidAt,
	}
	require.NoError(t, db.Create(&order).Error)

	req := httptest.NewRequest(http.MethodGet, "/api/check-order-status?payment_intent=pi_601", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var loaded models.Order
	require.NoError(t, db.First(&loaded, "id = ?", order.ID).Error)
	require.NotNil(t, loaded.PaidAt)
	assert.True(t, paidAt.Equal(loaded.PaidAt.UTC()), "poller must not rewrite paid_at")
}

func TestCheckOrderStatusValidation(t *testing.T) {
	db := newTestDB(t)
	app := newStatusApp(t, db, newStubGateway())

	req := httptest.NewRequest(http.MethodGet, "/api/check-order-status", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckOrderStatusUnknownIntent(t *testing.T) {
	db := newTestDB(t)
	app := newStatusApp(t, db, newStubGateway())

	req := httptest.NewRequest(http.MethodGet, "/api/check-order-status?payment_intent=pi_missing", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestCheckOrderByNumber(t *testing.T) {
	db := newTestDB(t)
	gateway := newStubGateway()
	gateway.intents["pi_602"] = &services.PaymentIntent{ID: "pi_602", Status: services.IntentStatusSucceeded, Amount: 5000, LatestCharge: "ch_9"}
	app := newStatusApp(t, db, gateway)

	older := models.Order{OrderNumber: "ORD-602", PaymentStatus: models.PaymentStatusObsolete}
	older.CreatedAt = time.Now().Add(-time.Hour)
	newest := models.Order{OrderNumber: "ORD-602", PaymentStatus: models.PaymentStatusPaid, PaymentIntentID: "pi_602"}
	require.NoError(t, db.Create(&older).Error)
	require.NoError(t, db.Create(&newest).Error)

	req := httptest.NewRequest(http.MethodGet, "/api/check-order-by-number?orderNumber=ORD-602", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	returned := body["order"].(map[string]any)
	assert.Equal(t, models.PaymentStatusPaid, returned["payment_status"])
	assert.Len(t, body["allOrders"], 2)
	assert.Equal(t, services.IntentStatusSucceeded, body["paymentIntentStatus"])

	details := body["paymentIntentDetails"].(map[string]any)
	assert.Equal(t, "pi_602", details["id"])
	assert.Equal(t, "ch_9", details["latestCharge"])

	// Unknown order numbers 404.
	req = httptest.NewRequest(http.MethodGet, "/api/check-order-by-number?orderNumber=ORD-999", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
