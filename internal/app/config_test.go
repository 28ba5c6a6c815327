package app

import (
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoaderConfig() aconfig.Config {
	return aconfig.Config{
		EnvPrefix: "SHOP",
		SkipFiles: true,
		SkipFlags: true,
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SHOP_DATABASE_URL", "postgres://localhost/shop")

	cfg, err := loadConfig(testLoaderConfig())
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, "USD", cfg.Cart.Currency)
	assert.Equal(t, 5<<20, cfg.Cart.MaxPayloadBytes)
	assert.Equal(t, 30*time.Minute, cfg.Cart.SessionIdle)
	assert.Empty(t, cfg.Storage.Dir)
	assert.Equal(t, 100, cfg.RateLimit.Max)

	p, err := cfg.Cart.Policy()
	require.NoError(t, err)
	assert.Equal(t, "0.05", p.TaxRate.String())
	assert.Equal(t, "500", p.FreeDeliveryThreshold.String())
	assert.Equal(t, "50", p.DeliveryFee.String())
}

func TestLoadConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/shop")
	t.Setenv("PORT", "9090")

	cfg, err := loadConfig(testLoaderConfig())
	require.NoError(t, err)

	assert.Equal(t, "postgres://platform/shop", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "missing database", env: map[string]string{}, wantErr: "database URL is required"},
		{name: "bad tax rate", env: map[string]string{"SHOP_CART_TAX_RATE": "five"}, wantErr: "tax rate"},
		{name: "negative fee", env: map[string]string{"SHOP_CART_DELIVERY_FEE": "-1"}, wantErr: "delivery fee must not be negative"},
		{name: "unknown currency", env: map[string]string{"SHOP_CART_CURRENCY": "ZZZ"}, wantErr: "currency"},
		{name: "bad filter rate", env: map[string]string{"SHOP_COUPONS_FALSE_POSITIVE_RATE": "1.5"}, wantErr: "false positive rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			if tt.name != "missing database" {
				t.Setenv("SHOP_DATABASE_URL", "postgres://localhost/shop")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := loadConfig(testLoaderConfig())

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCartConfig_Unit(t *testing.T) {
	u, err := CartConfig{Currency: "eur"}.Unit()
	require.NoError(t, err)
	assert.Equal(t, "EUR", u.String())
}
