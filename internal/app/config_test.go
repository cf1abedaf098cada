package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("STOREFRONT_DATABASE_URL", "postgres://localhost/storefront")

	cfg, err := loadConfig(true)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 168*time.Hour, cfg.Redis.CartTTL)
	assert.Equal(t, 5*time.Second, cfg.Payment.Timeout)
	assert.True(t, cfg.Payment.Simulate)
	assert.Equal(t, "MERCADO_PAGO", cfg.Checkout.PaymentMethod)
	assert.Equal(t, "DEFAULT_SHIPPING", cfg.Checkout.ShippingMethod)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Kafka.WriteTimeout)
	assert.Equal(t, 100, cfg.RateLimit.Max)
}

func TestLoadConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("REDIS_URL", "redis://platform:6379/1")
	t.Setenv("PORT", "9090")

	cfg, err := loadConfig(true)
	require.NoError(t, err)

	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "redis://platform:6379/1", cfg.Redis.URL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
}

func TestLoadConfig_PrefixedWins(t *testing.T) {
	t.Setenv("STOREFRONT_DATABASE_URL", "postgres://prefixed/db")
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("STOREFRONT_REDIS_URL", "redis://prefixed:6379/0")
	t.Setenv("REDIS_URL", "redis://platform:6379/1")

	cfg, err := loadConfig(true)
	require.NoError(t, err)

	assert.Equal(t, "postgres://prefixed/db", cfg.DatabaseURL)
	assert.Equal(t, "redis://prefixed:6379/0", cfg.Redis.URL)
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Run("MissingDatabase", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		_, err := loadConfig(true)
		require.Error(t, err)
	})
	t.Run("RealProviderNeedsToken", func(t *testing.T) {
		t.Setenv("STOREFRONT_DATABASE_URL", "postgres://localhost/storefront")
		t.Setenv("STOREFRONT_PAYMENT_SIMULATE", "false")
		_, err := loadConfig(true)
		require.Error(t, err)
	})
}
