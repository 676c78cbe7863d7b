package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// NewOrderNumber generates an opaque checkout reconciliation key in the form
// ORD-<timestamp>-<random>. Clients cache and reuse it across retries of the
// same checkout session.
func NewOrderNumber() string {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		// Timestamp alone still yields a usable key.
		return fmt.Sprintf("ORD-%d", time.Now().UnixMilli())
	}
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), strings.ToUpper(hex.EncodeToString(suffix)))
}
