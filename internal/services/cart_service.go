package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCartItemNotFound = errors.New("cart item not found")

// CartItem is one line in the server-side cart. variant_id uniquely
// identifies a line; adding the same variant increments quantity.
type CartItem struct {
	ProductID string  `json:"product_id"`
	VariantID string  `json:"variant_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image"`
	Color     string  `json:"color"`
	Size      string  `json:"size"`
}

// Cart is the single source of truth for in-progress checkouts, stored in
// Redis keyed by normalized email.
type Cart struct {
	Email     string     `json:"email"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TotalQuantity sums line quantities.
func (c *Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// CartService stores carts in Redis with a TTL so abandoned carts expire.
type CartService struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCartService(rdb *redis.Client, ttl time.Duration) *CartService {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &CartService{rdb: rdb, ttl: ttl}
}

func cartKey(email string) string {
	return "cart:" + NormalizeEmail(email)
}

// Get loads the cart for an email, returning an empty cart when none exists.
func (s *CartService) Get(ctx context.Context, email string) (*Cart, error) {
	data, err := s.rdb.Get(ctx, cartKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &Cart{Email: NormalizeEmail(email), Items: []CartItem{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	var cart Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}

	return &cart, nil
}

func (s *CartService) save(ctx context.Context, cart *Cart) error {
	cart.UpdatedAt = time.Now()
	data, err := json.Marshal(cart)
	if err != nil {
		return err
	}

	return s.rdb.Set(ctx, cartKey(cart.Email), data, s.ttl).Err()
}

// AddItem merges an item into the cart: an existing variant line gains
// quantity rather than duplicating.
func (s *CartService) AddItem(ctx context.Context, email string, item CartItem) (*Cart, error) {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}

	cart, err := s.Get(ctx, email)
	if err != nil {
		return nil, err
	}

	merged := false
	for i := range cart.Items {
		if cart.Items[i].VariantID == item.VariantID {
			cart.Items[i].Quantity += item.Quantity
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, item)
	}

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}

	return cart, nil
}

// UpdateQuantity sets the quantity of a variant line and reports the delta
// so the caller can reserve or release the difference.
func (s *CartService) UpdateQuantity(ctx context.Context, email, variantID string, quantity int) (*Cart, int, error) {
	cart, err := s.Get(ctx, email)
	if err != nil {
		return nil, 0, err
	}

	for i := range cart.Items {
		if cart.Items[i].VariantID != variantID {
			continue
		}

		delta := quantity - cart.Items[i].Quantity
		if quantity <= 0 {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
		} else {
			cart.Items[i].Quantity = quantity
		}

		if err := s.save(ctx, cart); err != nil {
			return nil, 0, err
		}

		return cart, delta, nil
	}

	return nil, 0, ErrCartItemNotFound
}

// RemoveItem drops a variant line, returning the removed line.
func (s *CartService) RemoveItem(ctx context.Context, email, variantID string) (*Cart, *CartItem, error) {
	cart, err := s.Get(ctx, email)
	if err != nil {
		return nil, nil, err
	}

	for i := range cart.Items {
		if cart.Items[i].VariantID != variantID {
			continue
		}

		removed := cart.Items[i]
		cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
		if err := s.save(ctx, cart); err != nil {
			return nil, nil, err
		}

		return cart, &removed, nil
	}

	return nil, nil, ErrCartItemNotFound
}

// Clear deletes the cart, returning the items it held so reservations can be
// released.
func (s *CartService) Clear(ctx context.Context, email string) ([]CartItem, error) {
	cart, err := s.Get(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := s.rdb.Del(ctx, cartKey(email)).Err(); err != nil {
		return nil, err
	}

	return cart.Items, nil
}
