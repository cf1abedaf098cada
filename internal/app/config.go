package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	Redis        RedisConfig
	Payment      PaymentConfig
	Checkout     CheckoutConfig
	Kafka        KafkaConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RedisConfig controls the cart store.
type RedisConfig struct {
	URL     string        `default:"redis://localhost:6379/0" usage:"Redis URL (STOREFRONT_REDIS_URL or REDIS_URL)"`
	CartTTL time.Duration `default:"168h" usage:"Cart lifetime after the last change" flag:"cart-ttl"`
}

// PaymentConfig controls the Mercado Pago integration.
type PaymentConfig struct {
	BaseURL     string        `default:"https://api.mercadopago.com" usage:"Mercado Pago API base URL"`
	AccessToken string        `usage:"Mercado Pago access token"`
	Timeout     time.Duration `default:"5s" usage:"Timeout of a single payment provider call"`
	// Simulate fabricates preferences locally instead of calling the provider.
	Simulate        bool   `default:"true" usage:"Simulate payment preferences"`
	RedirectBaseURL string `default:"https://www.mercadopago.com.ar/checkout/v1/redirect" usage:"Checkout redirect base for simulated preferences"`
	SuccessURL      string `usage:"Buyer redirect after an approved payment"`
	FailureURL      string `usage:"Buyer redirect after a rejected payment"`
	PendingURL      string `usage:"Buyer redirect after a pending payment"`
}

// CheckoutConfig holds the values stamped on new orders.
type CheckoutConfig struct {
	PaymentMethod  string `default:"MERCADO_PAGO" usage:"Payment method recorded on orders"`
	ShippingMethod string `default:"DEFAULT_SHIPPING" usage:"Shipping method recorded on orders"`
}

// KafkaConfig controls order event publishing. Events are dropped when no
// brokers are configured.
type KafkaConfig struct {
	Brokers      []string      `usage:"Kafka bootstrap brokers"`
	Topic        string        `default:"storefront.orders" usage:"Order events topic"`
	WriteTimeout time.Duration `default:"3s" usage:"Deadline for a single event publish" flag:"kafka-write-timeout"`
}

// RateLimitConfig controls the per-client token bucket rate limiter.
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(false)
}

func loadConfig(skipFlags bool) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		SkipFlags: skipFlags,
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	if !c.Payment.Simulate && c.Payment.AccessToken == "" {
		return errors.New("payment access token is required unless simulation is enabled")
	}
	if c.Payment.Timeout <= 0 {
		return errors.New("payment timeout must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL, REDIS_URL and PORT
// to the application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" && os.Getenv("STOREFRONT_REDIS_URL") == "" {
		c.Redis.URL = v
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
