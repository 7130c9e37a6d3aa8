package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.HTTPPort)
	require.Equal(t, 5, cfg.LockoutMaxAttempts)
	require.Equal(t, 2*time.Hour, cfg.LockoutDuration)
	require.Equal(t, 256, cfg.OpaqueTokenLength)
	require.Equal(t, 30, cfg.AssertionLifetimeMinutes)
	require.Equal(t, "core-web-ui", cfg.Seed.ClientID)
	require.Equal(t, []string{"http://localhost:4200"}, cfg.Seed.ClientOrigins)
	require.Empty(t, cfg.TrustedProxies)
	require.Equal(t, 1.0, cfg.TelemetrySampleRatio)
}

func TestLoadRequiresStoreURI(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("MONGO_URI", "")
	_, err := Load()
	require.ErrorContains(t, err, "MONGO_URI")

	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err = Load()
	require.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("STORE_DRIVER", "cassandra")
	_, err = Load()
	require.ErrorContains(t, err, "STORE_DRIVER")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/core")
	t.Setenv("PASSWORD_ALGORITHM", "BCRYPT")
	t.Setenv("LOCKOUT_DURATION", "15m")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("SEED_ON_START", "yes")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.10")
	t.Setenv("OTEL_TRACES_SAMPLER_RATIO", "0.25")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "bcrypt", cfg.PasswordAlgorithm)
	require.Equal(t, 15*time.Minute, cfg.LockoutDuration)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.True(t, cfg.SeedOnStart)
	require.Equal(t, []string{"10.0.0.0/8", "192.168.1.10"}, cfg.TrustedProxies)
	require.Equal(t, 0.25, cfg.TelemetrySampleRatio)
}

func TestValidateRejectsShortTokens(t *testing.T) {
	cfg := Config{StoreDriver: StoreMemory, PasswordAlgorithm: "argon2id", OpaqueTokenLength: 8, LockoutMaxAttempts: 5}
	require.ErrorContains(t, cfg.Validate(), "OPAQUE_TOKEN_LENGTH")
}

func TestValidateRejectsSampleRatio(t *testing.T) {
	cfg := Config{StoreDriver: StoreMemory, PasswordAlgorithm: "argon2id", OpaqueTokenLength: 64, LockoutMaxAttempts: 5, TelemetrySampleRatio: 1.5}
	require.ErrorContains(t, cfg.Validate(), "OTEL_TRACES_SAMPLER_RATIO")
}
