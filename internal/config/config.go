package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/RaikyD/storefront-orders/internal/domain"
)

type Config struct {
	HTTP_PORT      string `env:"HTTP_PORT"`
	DB_STRING      string `env:"DB_STRING"`
	STORAGE_DRIVER string `env:"STORAGE_DRIVER"`
	MIGRATE        bool   `env:"MIGRATE_ON_START"`
	LOG_FORMAT     string `env:"LOG_FORMAT"`

	KAFKA_BROKERS       string `env:"KAFKA_BROKERS"`
	KAFKA_ORDER_TOPIC   string `env:"KAFKA_ORDER_TOPIC"`
	KAFKA_PAYMENT_TOPIC string `env:"KAFKA_PAYMENT_TOPIC"`
	KAFKA_GROUP_ID      string `env:"KAFKA_GROUP_ID"`

	STRIPE_SECRET_KEY     string `env:"STRIPE_SECRET_KEY"`
	STRIPE_WEBHOOK_SECRET string `env:"STRIPE_WEBHOOK_SECRET"`
	CURRENCY              string `env:"CURRENCY"`

	JWT_SECRET string `env:"JWT_SECRET"`
	REDIS_URL  string `env:"REDIS_URL"`

	Pricing domain.PricingConfig
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

func LoadConfig() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		HTTP_PORT:             getenv("HTTP_PORT"),
		DB_STRING:             getenv("DB_STRING"),
		STORAGE_DRIVER:        strings.ToLower(strings.TrimSpace(getenv("STORAGE_DRIVER"))),
		LOG_FORMAT:            getenv("LOG_FORMAT"),
		KAFKA_BROKERS:         getenv("KAFKA_BROKERS"),
		KAFKA_ORDER_TOPIC:     getenv("KAFKA_ORDER_TOPIC"),
		KAFKA_PAYMENT_TOPIC:   getenv("KAFKA_PAYMENT_TOPIC"),
		KAFKA_GROUP_ID:        getenv("KAFKA_GROUP_ID"),
		STRIPE_SECRET_KEY:     getenv("STRIPE_SECRET_KEY"),
		STRIPE_WEBHOOK_SECRET: getenv("STRIPE_WEBHOOK_SECRET"),
		CURRENCY:              strings.ToLower(getenv("CURRENCY")),
		JWT_SECRET:            getenv("JWT_SECRET"),
		REDIS_URL:             getenv("REDIS_URL"),
	}

	if cfg.HTTP_PORT == "" {
		cfg.HTTP_PORT = "8080"
	}
	if cfg.STORAGE_DRIVER == "" {
		cfg.STORAGE_DRIVER = DriverPostgres
	}
	if cfg.KAFKA_ORDER_TOPIC == "" {
		cfg.KAFKA_ORDER_TOPIC = "orders.events"
	}
	if cfg.KAFKA_PAYMENT_TOPIC == "" {
		cfg.KAFKA_PAYMENT_TOPIC = "payments.provider-events"
	}
	if cfg.KAFKA_GROUP_ID == "" {
		cfg.KAFKA_GROUP_ID = "storefront-orders"
	}
	if cfg.CURRENCY == "" {
		cfg.CURRENCY = "usd"
	}

	if v := getenv("MIGRATE_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("config: MIGRATE_ON_START: %w", err)
		}
		cfg.MIGRATE = b
	}

	pricing := domain.DefaultPricing()
	var err error
	if pricing.TaxRate, err = decimalEnv(getenv, "TAX_RATE", pricing.TaxRate); err != nil {
		return nil, err
	}
	if pricing.FreeDeliveryThreshold, err = decimalEnv(getenv, "FREE_DELIVERY_THRESHOLD", pricing.FreeDeliveryThreshold); err != nil {
		return nil, err
	}
	if pricing.DeliveryFee, err = decimalEnv(getenv, "DELIVERY_FEE", pricing.DeliveryFee); err != nil {
		return nil, err
	}
	cfg.Pricing = pricing

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.STORAGE_DRIVER {
	case DriverPostgres:
		if c.DB_STRING == "" {
			return errors.New("config: DB_STRING is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.STORAGE_DRIVER)
	}
	if c.JWT_SECRET == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if c.Pricing.TaxRate.IsNegative() || c.Pricing.DeliveryFee.IsNegative() || c.Pricing.FreeDeliveryThreshold.IsNegative() {
		return errors.New("config: pricing constants must not be negative")
	}
	return nil
}

func decimalEnv(getenv func(string) string, key string, def decimal.Decimal) (decimal.Decimal, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
