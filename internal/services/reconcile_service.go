package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/models"
)

// ReconcileService owns the order/payment reconciliation transitions shared
// by the webhook handler and the status poller. Every mutation here must be
// safe to repeat: the gateway retries failed webhooks and the poller can race
// a webhook delivery.
type ReconcileService struct {
	db *gorm.DB
}

func NewReconcileService(db *gorm.DB) *ReconcileService {
	return &ReconcileService{db: db}
}

// ShippingAddress is the normalized address shape shared by checkout,
// webhook reconciliation and the profile address book.
type ShippingAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// IsZero reports whether no address fields are set.
func (a ShippingAddress) IsZero() bool {
	return a.Line1 == "" && a.City == "" && a.PostalCode == ""
}

// MarkOrderPaid transitions an order from pending to paid with a single
// conditional update. Returns false when the order was not pending, which
// makes webhook replays and poller races no-ops: paid_at and payment_details
// are only ever written by the one transition that wins.
func (s *ReconcileService) MarkOrderPaid(ctx context.Context, orderID uuid.UUID, intentID string, details []byte) (bool, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, models.PaymentStatusPending).
		Updates(map[string]any{
			"payment_status":    models.PaymentStatusPaid,
			"payment_intent_id": intentID,
			"paid_at":           &now,
			"payment_details":   details,
		})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

// MarkSiblingsObsolete marks all other pending orders carrying the same
// order number as obsolete. Scoped by order number, not customer email: a
// customer may legitimately have a second unrelated checkout in flight.
func (s *ReconcileService) MarkSiblingsObsolete(ctx context.Context, orderNumber string, keepID uuid.UUID) (int64, error) {
	if orderNumber == "" {
		return 0, nil
	}

	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_number = ? AND id <> ? AND payment_status = ?", orderNumber, keepID, models.PaymentStatusPending).
		Updates(map[string]any{
			"payment_status":  models.PaymentStatusObsolete,
			"obsolete_reason": "superseded by paid sibling",
			"obsolete_at":     &now,
		})

	return res.RowsAffected, res.Error
}

// FindOrCreateUser loads the user for an email, creating an active account
// row on first sight.
func (s *ReconcileService) FindOrCreateUser(ctx context.Context, email, name string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("email is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{
		Email:         email,
		Name:          name,
		AccountStatus: models.AccountStatusActive,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}

	return &user, nil
}

// SaveShippingAddress deduplicates against the user's saved addresses.
// A normalized match on line1/city/state/postalCode/country only bumps
// last_used; a new address is created with last_used set so lists come back
// most-recently-used first. Idempotent under webhook replay.
func (s *ReconcileService) SaveShippingAddress(ctx context.Context, userID uuid.UUID, addr ShippingAddress) error {
	if addr.IsZero() {
		return nil
	}

	var existing []models.UserAddress
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&existing).Error; err != nil {
		return err
	}

	key := addressKey(addr.Line1, addr.City, addr.State, addr.PostalCode, addr.Country)
	now := time.Now()
	for _, saved := range existing {
		if addressKey(saved.Line1, saved.City, saved.State, saved.PostalCode, saved.Country) == key {
			return s.db.WithContext(ctx).
				Model(&models.UserAddress{}).
				Where("id = ?", saved.ID).
				Update("last_used", now).Error
		}
	}

	record := models.UserAddress{
		UserID:     userID,
		Name:       addr.Name,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		LastUsed:   now,
	}

	return s.db.WithContext(ctx).Create(&record).Error
}

// BackfillGuestOrders attaches orders placed as a guest to a newly activated
// account.
func (s *ReconcileService) BackfillGuestOrders(ctx context.Context, userID uuid.UUID, email string) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("customer_email = ? AND user_id IS NULL", NormalizeEmail(email)).
		Update("user_id", userID)

	return res.RowsAffected, res.Error
}

// NormalizeEmail lowercases and trims an email for use as a lookup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// addressKey builds a case- and whitespace-insensitive comparison key.
func addressKey(parts ...string) string {
	normalized := make([]string, 0, len(parts))
	for _, p := range parts {
		normalized = append(normalized, strings.Join(strings.Fields(strings.ToLower(p)), " "))
	}
	return strings.Join(normalized, "|")
}
