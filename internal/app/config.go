package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (CAFE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CAFE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Redis       RedisConfig
	Payment     PaymentConfig
	Delivery    DeliveryConfig
	Poller      PollerConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RedisConfig controls the session store. An empty address selects the
// in-process store, which is fine for a single instance.
type RedisConfig struct {
	Addr       string        `default:"" usage:"Redis address for session storage; empty uses in-memory sessions" flag:"redis-addr"`
	Password   string        `default:"" usage:"Redis password" flag:"redis-password"`
	DB         int           `default:"0" usage:"Redis database number" flag:"redis-db"`
	SessionTTL time.Duration `default:"30m" usage:"Idle dialogue lifetime" flag:"session-ttl"`
}

// PaymentConfig holds the payment provider credentials.
type PaymentConfig struct {
	ShopID    string        `usage:"YooKassa shop id (CAFE_PAYMENT_SHOP_ID)" flag:"payment-shop-id"`
	SecretKey string        `usage:"YooKassa secret key (CAFE_PAYMENT_SECRET_KEY)" flag:"payment-secret-key"`
	ReturnURL string        `default:"" usage:"Where the provider sends the customer after paying" flag:"payment-return-url"`
	BaseURL   string        `default:"" usage:"Override of the provider API base URL, for testing" flag:"payment-base-url"`
	Timeout   time.Duration `default:"30s" usage:"Provider request timeout" flag:"payment-timeout"`
}

// DeliveryConfig is the delivery fee policy, in kopecks.
type DeliveryConfig struct {
	Fee      int64 `default:"200" usage:"Flat delivery fee, kopecks" flag:"delivery-fee"`
	FreeOver int64 `default:"2000" usage:"Subtotal from which delivery is free, kopecks" flag:"delivery-free-over"`
}

// PollerConfig controls the payment status reconciliation loop.
type PollerConfig struct {
	Interval time.Duration `default:"1m" usage:"Poll interval for stuck payments" flag:"poller-interval"`
	MinAge   time.Duration `default:"5m" usage:"How long a payment must be untouched before polling" flag:"poller-min-age"`
	Batch    int           `default:"50" usage:"Payments reconciled per tick" flag:"poller-batch"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CAFE",
		Files:     []string{"config.yaml", "/etc/cafeorder/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CAFE_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Payment.ShopID == "" || cfg.Payment.SecretKey == "" {
		return nil, errors.New("payment credentials are required: set CAFE_PAYMENT_SHOP_ID and CAFE_PAYMENT_SECRET_KEY")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that
// use standard names like DATABASE_URL and PORT to the application's
// CAFE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Redis.Addr == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.Redis.Addr = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
