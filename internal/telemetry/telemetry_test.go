package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/razorphish/core-api-sub000/internal/config"
)

func TestNewWithoutEndpointIsNoop(t *testing.T) {
	p, err := New(context.Background(), config.Config{ServiceName: "oauthd"}, zap.NewNop())
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "Exchange.Password")
	require.False(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	var nilProvider *Provider
	require.NotNil(t, nilProvider.Tracer())
	require.NoError(t, nilProvider.Shutdown(context.Background()))
}

func TestResourceAttributesDescribeServer(t *testing.T) {
	attrs := ResourceAttributes(config.Config{
		ServiceName:        "oauthd",
		Environment:        "production",
		StoreDriver:        config.StorePostgres,
		PasswordAlgorithm:  "argon2id",
		LockoutMaxAttempts: 5,
		JWTPrivateKeyFile:  "/keys/private.pem",
	})

	set := attribute.NewSet(attrs...)
	driver, ok := set.Value("oauthd.store.driver")
	require.True(t, ok)
	require.Equal(t, "postgres", driver.AsString())
	attempts, _ := set.Value("oauthd.lockout.max_attempts")
	require.Equal(t, int64(5), attempts.AsInt64())
	signing, _ := set.Value("oauthd.jwt.signing")
	require.True(t, signing.AsBool())
	cache, _ := set.Value("oauthd.token_cache")
	require.False(t, cache.AsBool())
	name, _ := set.Value("service.name")
	require.Equal(t, "oauthd", name.AsString())
}
