//go:build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/razorphish/core-api-sub000/internal/domain"
)

func TestRedisTokenCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Fatal("REDIS_ADDR must be set for integration tests")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	c := NewRedisTokenCache(client, time.Minute)

	token := domain.Token{
		ID:         uuid.NewString(),
		Value:      "digest-" + uuid.NewString(),
		Name:       domain.TokenNameAccess,
		UserID:     "acc-1",
		DateExpire: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}

	miss, err := c.Get(ctx, token.Value)
	require.NoError(t, err)
	require.Nil(t, miss)

	require.NoError(t, c.Set(ctx, token))
	hit, err := c.Get(ctx, token.Value)
	require.NoError(t, err)
	require.NotNil(t, hit)
	require.Equal(t, token.ID, hit.ID)

	require.NoError(t, c.Delete(ctx, token.Value))
	miss, err = c.Get(ctx, token.Value)
	require.NoError(t, err)
	require.Nil(t, miss)

	expired := token
	expired.Value = "digest-" + uuid.NewString()
	expired.DateExpire = time.Now().Add(-time.Minute)
	require.NoError(t, c.Set(ctx, expired))
	miss, err = c.Get(ctx, expired.Value)
	require.NoError(t, err)
	require.Nil(t, miss)
}
