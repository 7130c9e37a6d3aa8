package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/razorphish/core-api-sub000/internal/domain"
	"github.com/razorphish/core-api-sub000/internal/repository"
)

const tokenKeyPrefix = "oauth:token:"

// RedisTokenCache implements TokenCache backed by Redis. Entries never outlive
// the token they describe.
type RedisTokenCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

var _ repository.TokenCache = (*RedisTokenCache)(nil)

// NewRedisTokenCache constructs a Redis-backed token cache. ttl caps how long
// an entry may live regardless of token expiry.
func NewRedisTokenCache(client redis.UniversalClient, ttl time.Duration) *RedisTokenCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisTokenCache{client: client, ttl: ttl, now: time.Now}
}

// Get loads a cached token. A miss returns (nil, nil).
func (c *RedisTokenCache) Get(ctx context.Context, digest string) (*domain.Token, error) {
	payload, err := c.client.Get(ctx, tokenKeyPrefix+digest).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load token: %w", err)
	}
	var token domain.Token
	if err := json.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &token, nil
}

// Set stores the token until it expires or the cache ttl elapses.
func (c *RedisTokenCache) Set(ctx context.Context, token domain.Token) error {
	ttl := token.DateExpire.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	if ttl > c.ttl {
		ttl = c.ttl
	}
	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := c.client.Set(ctx, tokenKeyPrefix+token.Value, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	return nil
}

// Delete evicts the given digests.
func (c *RedisTokenCache) Delete(ctx context.Context, digests ...string) error {
	if len(digests) == 0 {
		return nil
	}
	keys := make([]string, 0, len(digests))
	for _, d := range digests {
		keys = append(keys, tokenKeyPrefix+d)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// NoopTokenCache is used when no Redis address is configured.
type NoopTokenCache struct{}

var _ repository.TokenCache = NoopTokenCache{}

func (NoopTokenCache) Get(context.Context, string) (*domain.Token, error) { return nil, nil }
func (NoopTokenCache) Set(context.Context, domain.Token) error            { return nil }
func (NoopTokenCache) Delete(context.Context, ...string) error            { return nil }
