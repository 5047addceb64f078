package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// invalidationWindow is how long a Delete blocks later Sets for the same
// cart. A reader that loaded the cart before the mutation committed cannot
// repopulate the entry with the old state inside that window.
const invalidationWindow = 10 * time.Second

// setUnlessInvalidated writes KEYS[1] unless the invalidation marker
// KEYS[2] is present. Returns 1 when the entry was written.
var setUnlessInvalidated = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisCache{
		client:  client,
		baseTTL: ttl,
	}
}

func (r *RedisCache) Get(ctx context.Context, cartID uuid.UUID) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(cartID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &cart, nil
}

// Set stores the cart with a jittered TTL so entries written together do
// not expire together. Within the invalidation window of a Delete the write
// is skipped.
func (r *RedisCache) Set(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	jitter := time.Duration(rand.IntN(5)) * time.Minute
	ttl := r.baseTTL + jitter
	keys := []string{cacheKey(cart.ID), invalidatedKey(cart.ID)}
	if err := setUnlessInvalidated.Run(ctx, r.client, keys, data, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete drops the entry and marks the cart invalidated for
// invalidationWindow.
func (r *RedisCache) Delete(ctx context.Context, cartID uuid.UUID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, cacheKey(cartID))
		pipe.Set(ctx, invalidatedKey(cartID), 1, invalidationWindow)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(cartID uuid.UUID) string {
	return fmt.Sprintf("cart:%s", cartID)
}

func invalidatedKey(cartID uuid.UUID) string {
	return fmt.Sprintf("cart:%s:invalidated", cartID)
}
