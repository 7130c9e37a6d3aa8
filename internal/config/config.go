package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	ServiceName string
	// TrustedProxies lists proxy IPs/CIDRs whose X-Forwarded-For is honoured.
	// Empty trusts none and client IPs come from the connection.
	TrustedProxies []string

	StoreDriver   string
	MongoURI      string
	MongoDatabase string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TokenCacheTTL time.Duration

	PasswordAlgorithm        string
	BcryptCost               int
	OpaqueTokenLength        int
	LockoutMaxAttempts       int
	LockoutDuration          time.Duration
	AssertionLifetimeMinutes int
	DefaultAccessLifetime    int
	DefaultRefreshLifetime   int
	SnowflakeNode            int64

	JWTPrivateKeyFile string
	JWTPublicKeyFile  string
	JWTIssuer         string

	TokenSweepInterval time.Duration
	RateLimitRPM       int

	SentryDSN         string
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	TelemetrySampleRatio float64

	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool

	SeedOnStart bool
	Seed        Seed
}

// Seed describes the client and account upserted by `oauthd seed`.
type Seed struct {
	ClientID             string
	ClientName           string
	ClientSecret         string
	ClientOrigins        []string
	ClientTrusted        bool
	ClientProtocol       string
	TokenLifeTime        int
	RefreshTokenLifeTime int

	AccountUsername string
	AccountEmail    string
	AccountPassword string
	AccountFirst    string
	AccountLast     string
	AccountRoles    []string
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment: getEnv("APP_ENV", "development"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		ServiceName: getEnv("SERVICE_NAME", "oauthd"),

		TrustedProxies: getList("TRUSTED_PROXIES", nil),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", StoreMongo)),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: getEnv("MONGO_DATABASE", "core"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		TokenCacheTTL: getDuration("TOKEN_CACHE_TTL", 5*time.Minute),

		PasswordAlgorithm:        strings.ToLower(getEnv("PASSWORD_ALGORITHM", "argon2id")),
		BcryptCost:               getInt("BCRYPT_COST", 10),
		OpaqueTokenLength:        getInt("OPAQUE_TOKEN_LENGTH", 256),
		LockoutMaxAttempts:       getInt("LOCKOUT_MAX_ATTEMPTS", 5),
		LockoutDuration:          getDuration("LOCKOUT_DURATION", 2*time.Hour),
		AssertionLifetimeMinutes: getInt("ASSERTION_LIFETIME_MINUTES", 30),
		DefaultAccessLifetime:    getInt("DEFAULT_TOKEN_LIFETIME_MINUTES", 30),
		DefaultRefreshLifetime:   getInt("DEFAULT_REFRESH_LIFETIME_MINUTES", 1440),
		SnowflakeNode:            int64(getInt("SNOWFLAKE_NODE", 1)),

		JWTPrivateKeyFile: os.Getenv("JWT_PRIVATE_KEY_FILE"),
		JWTPublicKeyFile:  os.Getenv("JWT_PUBLIC_KEY_FILE"),
		JWTIssuer:         getEnv("JWT_ISSUER", "oauthd"),

		TokenSweepInterval: getDuration("TOKEN_SWEEP_INTERVAL", 10*time.Minute),
		RateLimitRPM:       getInt("RATE_LIMIT_RPM", 600),

		SentryDSN:         os.Getenv("SENTRY_DSN"),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		TelemetrySampleRatio: getFloat("OTEL_TRACES_SAMPLER_RATIO", 1),

		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "Origin"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),

		SeedOnStart: getBool("SEED_ON_START", false),
		Seed: Seed{
			ClientID:             getEnv("SEED_CLIENT_ID", "core-web-ui"),
			ClientName:           getEnv("SEED_CLIENT_NAME", "Core Web UI"),
			ClientSecret:         os.Getenv("SEED_CLIENT_SECRET"),
			ClientOrigins:        getList("SEED_CLIENT_ORIGINS", []string{"http://localhost:4200"}),
			ClientTrusted:        getBool("SEED_CLIENT_TRUSTED", true),
			ClientProtocol:       getEnv("SEED_CLIENT_PROTOCOL", "http"),
			TokenLifeTime:        getInt("SEED_CLIENT_TOKEN_LIFETIME", 30),
			RefreshTokenLifeTime: getInt("SEED_CLIENT_REFRESH_LIFETIME", 1440),

			AccountUsername: os.Getenv("SEED_ACCOUNT_USERNAME"),
			AccountEmail:    getEnv("SEED_ACCOUNT_EMAIL", "david@maras.co"),
			AccountPassword: os.Getenv("SEED_ACCOUNT_PASSWORD"),
			AccountFirst:    os.Getenv("SEED_ACCOUNT_FIRST_NAME"),
			AccountLast:     os.Getenv("SEED_ACCOUNT_LAST_NAME"),
			AccountRoles:    getList("SEED_ACCOUNT_ROLES", []string{"admin"}),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for STORE_DRIVER=%s", c.StoreDriver)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=%s", c.StoreDriver)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.PasswordAlgorithm {
	case "argon2id", "bcrypt":
	default:
		return fmt.Errorf("unsupported PASSWORD_ALGORITHM %q", c.PasswordAlgorithm)
	}

	if c.OpaqueTokenLength < 32 {
		return fmt.Errorf("OPAQUE_TOKEN_LENGTH must be at least 32")
	}
	if c.LockoutMaxAttempts < 1 {
		return fmt.Errorf("LOCKOUT_MAX_ATTEMPTS must be positive")
	}
	if c.TelemetrySampleRatio < 0 || c.TelemetrySampleRatio > 1 {
		return fmt.Errorf("OTEL_TRACES_SAMPLER_RATIO must be between 0 and 1")
	}
	return nil
}

// IsDevelopment reports whether APP_ENV selects development behaviour.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		var cleaned []string
		for _, p := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
