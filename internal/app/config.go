package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/xenking/storefront-cart/internal/domain/cart"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL prepended to product image paths" flag:"image-base-url"`
	Cart         CartConfig
	Storage      StorageConfig
	Coupons      CouponConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// CartConfig holds the pricing policy and ledger limits. Amounts are decimal
// strings so no precision is lost between YAML and shopspring/decimal.
type CartConfig struct {
	TaxRate               string        `default:"0.05" usage:"Tax rate applied to the subtotal" flag:"tax-rate"`
	FreeDeliveryThreshold string        `default:"500" usage:"Subtotal at which delivery becomes free" flag:"free-delivery-threshold"`
	DeliveryFee           string        `default:"50" usage:"Flat delivery fee below the threshold" flag:"delivery-fee"`
	Currency              string        `default:"USD" usage:"ISO 4217 currency code of all amounts"`
	MaxPayloadBytes       int           `default:"5242880" usage:"Largest serialized cart that is persisted" flag:"max-cart-bytes"`
	SessionIdle           time.Duration `default:"30m" usage:"Idle time after which a cart session is unloaded" flag:"session-idle"`
}

// StorageConfig selects where saved carts live.
type StorageConfig struct {
	Dir   string `default:"" usage:"Directory for saved carts; empty keeps carts in memory" flag:"cart-dir"`
	Quota int64  `default:"104857600" usage:"Total bytes saved carts may occupy" flag:"cart-quota"`
}

// CouponConfig controls the bloom prefilter in front of coupon lookups.
type CouponConfig struct {
	FalsePositiveRate float64       `default:"0.001" usage:"Bloom filter false positive rate for coupon codes"`
	RefreshInterval   time.Duration `default:"5m" usage:"How often the coupon filter is rebuilt"`
}

// RateLimitConfig controls the per-cart sliding window rate limiter.
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
// files and flags, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if _, err := cfg.Cart.Policy(); err != nil {
		return nil, err
	}
	if _, err := cfg.Cart.Unit(); err != nil {
		return nil, err
	}
	if cfg.Coupons.FalsePositiveRate <= 0 || cfg.Coupons.FalsePositiveRate >= 1 {
		return nil, errors.Errorf("coupon false positive rate %v out of range (0, 1)", cfg.Coupons.FalsePositiveRate)
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided DATABASE_URL and PORT to the
// SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// Policy parses the pricing amounts.
func (c CartConfig) Policy() (cart.Policy, error) {
	var (
		p   cart.Policy
		err error
	)
	if p.TaxRate, err = parseAmount("tax rate", c.TaxRate); err != nil {
		return p, err
	}
	if p.FreeDeliveryThreshold, err = parseAmount("free delivery threshold", c.FreeDeliveryThreshold); err != nil {
		return p, err
	}
	if p.DeliveryFee, err = parseAmount("delivery fee", c.DeliveryFee); err != nil {
		return p, err
	}
	return p, nil
}

// Unit validates Currency as an ISO 4217 code.
func (c CartConfig) Unit() (currency.Unit, error) {
	u, err := currency.ParseISO(c.Currency)
	if err != nil {
		return currency.Unit{}, errors.Wrapf(err, "currency %q", c.Currency)
	}
	return u, nil
}

func parseAmount(name, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %s", name)
	}
	if d.IsNegative() {
		return decimal.Zero, errors.Errorf("%s must not be negative, got %s", name, v)
	}
	return d, nil
}
