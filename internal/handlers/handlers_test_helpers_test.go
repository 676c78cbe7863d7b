package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/verdant/internal/database"
	"github.com/example/verdant/internal/services"
)

func jsonBody(t *testing.T, payload any) *bytes.Reader {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	return db
}

func newTestCartService(t *testing.T) (*services.CartService, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return services.NewCartService(rdb, time.Hour), mr
}

// stubGateway returns canned intents keyed by id and records creations.
type stubGateway struct {
	intents map[string]*services.PaymentIntent
	created []services.CreateIntentParams
	next    *services.PaymentIntent
	err     error
}

func newStubGateway() *stubGateway {
	return &stubGateway{intents: map[string]*services.PaymentIntent{}}
}

func (g *stubGateway) CreateIntent(ctx context.Context, params services.CreateIntentParams) (*services.PaymentIntent, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.created = append(g.created, params)
	intent := g.next
	if intent == nil {
		intent = &services.PaymentIntent{ID: "pi_test", ClientSecret: "pi_test_secret", Status: "requires_payment_method"}
	}
	intent.Metadata = params.Metadata
	g.intents[intent.ID] = intent
	return intent, nil
}

func (g *stubGateway) GetIntent(ctx context.Context, id string) (*services.PaymentIntent, error) {
	if g.err != nil {
		return nil, g.err
	}
	intent, ok := g.intents[id]
	if !ok {
		return nil, errors.New("no such payment intent")
	}
	return intent, nil
}

func (g *stubGateway) UpdateIntentMetadata(ctx context.Context, id string, metadata map[string]string) (*services.PaymentIntent, error) {
	intent, err := g.GetIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	if intent.Metadata == nil {
		intent.Metadata = map[string]string{}
	}
	for k, v := range metadata {
		intent.Metadata[k] = v
	}
	return intent, nil
}
