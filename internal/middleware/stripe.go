package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/example/verdant/internal/services"
)

// StripeWebhookMiddleware verifies the gateway signature over the raw body
// before the event handler runs. Fail-closed: any verification failure is a
// 400 and nothing is processed.
func StripeWebhookMiddleware(signingSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sig := c.Get("Stripe-Signature")
		if err := services.VerifyWebhookSignature(c.Body(), sig, signingSecret, services.DefaultSignatureTolerance); err != nil {
			log.Printf("[Webhook] signature verification failed: %v", err)
			return fiber.NewError(fiber.StatusBadRequest, "invalid webhook signature")
		}

		return c.Next()
	}
}
