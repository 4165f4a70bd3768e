package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration values used by the backend service.
type Config struct {
	// ServerAddress is the host:port pair the HTTP server listens on. Defaults to ":18111".
	ServerAddress string

	// DatabaseURL is the Postgres DSN used by database/sql. Required.
	DatabaseURL string

	// LogMode selects the zap preset ("dev" or "prod"). Defaults to "dev".
	LogMode string

	// DBMaxOpenConns bounds the connection pool, and therefore the number of
	// concurrent checkout transactions.
	DBMaxOpenConns int
	DBMaxIdleConns int

	// CheckoutTxTimeout bounds a single checkout unit of work, including the
	// wait for a free pool connection.
	CheckoutTxTimeout time.Duration

	// LowStockThreshold triggers a stock.low event when a variant's quantity
	// drops to or below it.
	LowStockThreshold int

	// MonthlyDiscountPercent and YearlyDiscountPercent are the membership
	// checkout discounts. Yearly is floored at monthly by the membership package.
	MonthlyDiscountPercent float64
	YearlyDiscountPercent  float64

	// EventsKeepAlive is the interval between SSE keep-alive comments.
	EventsKeepAlive time.Duration

	// RedisAddr enables the cross-process event relay when set.
	RedisAddr    string
	RedisChannel string

	// WorkerConcurrency is the number of notification job processors.
	WorkerConcurrency int
}

const (
	defaultServerAddress     = ":18111"
	defaultLogMode           = "dev"
	defaultDBMaxOpenConns    = 10
	defaultDBMaxIdleConns    = 5
	defaultCheckoutTxTimeout = 10 * time.Second
	defaultLowStockThreshold = 5
	defaultMonthlyDiscount   = 10
	defaultYearlyDiscount    = 15
	defaultEventsKeepAlive   = 15 * time.Second
	defaultRedisChannel      = "storefront-events"
	defaultWorkerConcurrency = 2

	envServerAddress     = "BACKEND_ADDR"
	envDatabaseURL       = "DATABASE_URL"
	envLogMode           = "LOG_MODE"
	envDBMaxOpenConns    = "DB_MAX_OPEN_CONNS"
	envDBMaxIdleConns    = "DB_MAX_IDLE_CONNS"
	envCheckoutTxTimeout = "CHECKOUT_TX_TIMEOUT"
	envLowStockThreshold = "LOW_STOCK_THRESHOLD"
	envMonthlyDiscount   = "MEMBERSHIP_MONTHLY_DISCOUNT"
	envYearlyDiscount    = "MEMBERSHIP_YEARLY_DISCOUNT"
	envEventsKeepAlive   = "EVENTS_KEEPALIVE"
	envRedisAddr         = "REDIS_ADDR"
	envRedisChannel      = "REDIS_CHANNEL"
	envWorkerConcurrency = "WORKER_CONCURRENCY"
)

// Load reads configuration from environment variables, applies defaults, and returns
// a Config structure. Required values return an error when missing.
func Load() (Config, error) {
	cfg := Config{
		ServerAddress: firstNonEmpty(os.Getenv(envServerAddress), defaultServerAddress),
		DatabaseURL:   strings.TrimSpace(os.Getenv(envDatabaseURL)),
		LogMode:       firstNonEmpty(os.Getenv(envLogMode), defaultLogMode),
		RedisAddr:     strings.TrimSpace(os.Getenv(envRedisAddr)),
		RedisChannel:  firstNonEmpty(os.Getenv(envRedisChannel), defaultRedisChannel),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("%s is required", envDatabaseURL)
	}

	var err error
	if cfg.DBMaxOpenConns, err = intEnv(envDBMaxOpenConns, defaultDBMaxOpenConns, 1); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxIdleConns, err = intEnv(envDBMaxIdleConns, defaultDBMaxIdleConns, 0); err != nil {
		return Config{}, err
	}
	if cfg.LowStockThreshold, err = intEnv(envLowStockThreshold, defaultLowStockThreshold, 0); err != nil {
		return Config{}, err
	}
	if cfg.WorkerConcurrency, err = intEnv(envWorkerConcurrency, defaultWorkerConcurrency, 1); err != nil {
		return Config{}, err
	}
	if cfg.CheckoutTxTimeout, err = durationEnv(envCheckoutTxTimeout, defaultCheckoutTxTimeout); err != nil {
		return Config{}, err
	}
	if cfg.EventsKeepAlive, err = durationEnv(envEventsKeepAlive, defaultEventsKeepAlive); err != nil {
		return Config{}, err
	}
	if cfg.MonthlyDiscountPercent, err = percentEnv(envMonthlyDiscount, defaultMonthlyDiscount); err != nil {
		return Config{}, err
	}
	if cfg.YearlyDiscountPercent, err = percentEnv(envYearlyDiscount, defaultYearlyDiscount); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func intEnv(key string, fallback, min int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v < min {
		return 0, fmt.Errorf("invalid %s: must be >= %d", key, min)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func percentEnv(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("invalid %s: must be between 0 and 100", key)
	}
	return v, nil
}
