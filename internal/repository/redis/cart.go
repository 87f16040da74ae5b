package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const keyPrefix = "cart:"

// errVersionMismatch aborts the Watch callback when the stored document has
// moved past the expected version.
var errVersionMismatch = errors.New("cart version mismatch")

// CartRepository stores carts as JSON documents in Redis, one key per user.
// Keys carry a TTL so abandoned carts age out on their own.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartRepository creates a Redis-backed cart repository.
func NewCartRepository(client *redis.Client, ttl time.Duration) *CartRepository {
	return &CartRepository{client: client, ttl: ttl}
}

// Get retrieves the cart document for a user.
func (r *CartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, keyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cart", userID)
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}

	return &cart, nil
}

// SaveIfVersion writes the cart under WATCH so a concurrent writer aborts the
// transaction. The stored document's version must equal expectedVersion
// (0 when the key is absent); on success the cart is written with the version
// bumped and the TTL refreshed.
func (r *CartRepository) SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int) (bool, error) {
	key := keyPrefix + cart.UserID

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		currentVersion := 0
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			// No document yet; only a fresh cart may be created.
		case err != nil:
			return fmt.Errorf("redis get cart: %w", err)
		default:
			var stored domain.Cart
			if err := json.Unmarshal(data, &stored); err != nil {
				return fmt.Errorf("unmarshal stored cart: %w", err)
			}
			currentVersion = stored.Version
		}

		if currentVersion != expectedVersion {
			return errVersionMismatch
		}

		cart.Version = expectedVersion + 1
		payload, err := json.Marshal(cart)
		if err != nil {
			return fmt.Errorf("marshal cart: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, errVersionMismatch) || errors.Is(err, redis.TxFailedErr) {
		cart.Version = expectedVersion
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis save cart: %w", err)
	}

	return true, nil
}

// Delete removes the cart document, reporting whether one existed.
func (r *CartRepository) Delete(ctx context.Context, userID string) (bool, error) {
	deleted, err := r.client.Del(ctx, keyPrefix+userID).Result()
	if err != nil {
		return false, fmt.Errorf("redis del cart: %w", err)
	}
	return deleted > 0, nil
}
