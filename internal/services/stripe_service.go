package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultStripeBaseURL = "https://api.stripe.com/v1"

// Intent statuses observed on the gateway.
const (
	IntentStatusSucceeded = "succeeded"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

// PaymentIntent is the subset of the gateway's payment-intent object the
// storefront cares about.
type PaymentIntent struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	ClientSecret string            `json:"client_secret"`
	ReceiptEmail string            `json:"receipt_email"`
	LatestCharge string            `json:"latest_charge"`
	Metadata     map[string]string `json:"metadata"`

	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// ParsePaymentIntent decodes a raw gateway payment-intent object, as carried
// in webhook event payloads.
func ParsePaymentIntent(raw []byte) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, fmt.Errorf("unmarshal payment intent: %w", err)
	}
	if intent.ID == "" {
		return nil, errors.New("payment intent missing id")
	}
	return &intent, nil
}

// CreateIntentParams captures inputs for a gateway intent creation call.
type CreateIntentParams struct {
	Amount       int64
	Currency     string
	ReceiptEmail string
	Metadata     map[string]string
}

// PaymentGateway is the gateway surface consumed by checkout and
// reconciliation code.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*PaymentIntent, error)
	GetIntent(ctx context.Context, id string) (*PaymentIntent, error)
	UpdateIntentMetadata(ctx context.Context, id string, metadata map[string]string) (*PaymentIntent, error)
}

// StripeService talks to the payment gateway's REST API.
type StripeService struct {
	secretKey string
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
}

// NewStripeService creates a gateway client. Outbound calls are throttled so
// webhook storms and poller traffic cannot exhaust the gateway rate limit.
func NewStripeService(secretKey string) *StripeService {
	baseURL := strings.TrimSpace(os.Getenv("STRIPE_API_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultStripeBaseURL
	}

	return &StripeService{
		secretKey: secretKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    httpClient,
		limiter:   rate.NewLimiter(rate.Limit(25), 50),
	}
}

// CreateIntent creates a payment intent with full metadata in a single call.
func (s *StripeService) CreateIntent(ctx context.Context, params CreateIntentParams) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", params.Amount))
	form.Set("currency", strings.ToLower(params.Currency))
	form.Set("automatic_payment_methods[enabled]", "true")
	if params.ReceiptEmail != "" {
		form.Set("receipt_email", params.ReceiptEmail)
	}
	for k, v := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	return s.do(ctx, http.MethodPost, "/payment_intents", form)
}

// GetIntent fetches the current state of a payment intent.
func (s *StripeService) GetIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	return s.do(ctx, http.MethodGet, "/payment_intents/"+url.PathEscape(id), nil)
}

// UpdateIntentMetadata merges metadata keys onto an existing intent.
func (s *StripeService) UpdateIntentMetadata(ctx context.Context, id string, metadata map[string]string) (*PaymentIntent, error) {
	form := url.Values{}
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	return s.do(ctx, http.MethodPost, "/payment_intents/"+url.PathEscape(id), form)
}

type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *StripeService) do(ctx context.Context, method, path string, form url.Values) (*PaymentIntent, error) {
	if s.secretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute gateway request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var gatewayErr stripeErrorResponse
		if err := json.Unmarshal(respBody, &gatewayErr); err == nil && gatewayErr.Error.Message != "" {
			return nil, fmt.Errorf("gateway error (%s): %s", gatewayErr.Error.Type, gatewayErr.Error.Message)
		}
		return nil, fmt.Errorf("gateway request failed: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	return ParsePaymentIntent(respBody)
}
