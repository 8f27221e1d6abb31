package basket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound indicates no basket exists for the owner.
var ErrNotFound = errors.New("basket: not found")

// Store persists baskets as JSON in Redis with a rolling TTL. One basket per
// owner, keyed by user id or guest session id.
type Store struct {
	R   *redis.Client
	TTL time.Duration
}

func (s Store) key(ownerID string) string { return "basket:" + ownerID }

func (s Store) ttl() time.Duration {
	if s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

// Get loads the owner's basket. Returns ErrNotFound when none exists.
func (s Store) Get(ctx context.Context, ownerID string) (Basket, error) {
	if s.R == nil {
		return Basket{}, errors.New("basket: store not configured")
	}
	data, err := s.R.Get(ctx, s.key(ownerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Basket{}, ErrNotFound
		}
		return Basket{}, fmt.Errorf("basket: load: %w", err)
	}
	var b Basket
	if err := json.Unmarshal(data, &b); err != nil {
		return Basket{}, fmt.Errorf("basket: decode: %w", err)
	}
	return b, nil
}

// Save persists the basket and refreshes its TTL.
func (s Store) Save(ctx context.Context, b Basket) error {
	if s.R == nil {
		return errors.New("basket: store not configured")
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("basket: encode: %w", err)
	}
	if err := s.R.Set(ctx, s.key(b.OwnerID), data, s.ttl()).Err(); err != nil {
		return fmt.Errorf("basket: save: %w", err)
	}
	return nil
}

// Delete removes the owner's basket.
func (s Store) Delete(ctx context.Context, ownerID string) error {
	if s.R == nil {
		return errors.New("basket: store not configured")
	}
	if err := s.R.Del(ctx, s.key(ownerID)).Err(); err != nil {
		return fmt.Errorf("basket: delete: %w", err)
	}
	return nil
}
