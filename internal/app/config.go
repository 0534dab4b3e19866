package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketcart/internal/domain"
)

// Драйверы локального хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverFile     = "file"
	StorageDriverRedis    = "redis"
	StorageDriverPostgres = "postgres"
)

// RemoteDisabled в MARKETCART_API_URL отключает коллаборатор: корзина работает только локально.
const RemoteDisabled = "off"

// Переменные окружения.
const (
	EnvHTTPAddr            = "MARKETCART_HTTP_ADDR"
	EnvMetricsAddr         = "MARKETCART_METRICS_ADDR"
	EnvAPIURL              = "MARKETCART_API_URL"
	EnvRemoteTimeout       = "MARKETCART_REMOTE_TIMEOUT"
	EnvBreakerFailures     = "MARKETCART_BREAKER_FAILURES"
	EnvBreakerCooldown     = "MARKETCART_BREAKER_COOLDOWN"
	EnvStorageDriver       = "MARKETCART_STORAGE_DRIVER"
	EnvStorageDir          = "MARKETCART_STORAGE_DIR"
	EnvRedisAddr           = "MARKETCART_REDIS_ADDR"
	EnvPostgresDSN         = "MARKETCART_POSTGRES_DSN"
	EnvPostgresAutoMigrate = "MARKETCART_POSTGRES_AUTO_MIGRATE"
	EnvShippingRate        = "MARKETCART_SHIPPING_RATE"
	EnvShippingCap         = "MARKETCART_SHIPPING_CAP"
	EnvLogLevel            = "MARKETCART_LOG_LEVEL"
)

// Config описывает настройки запуска шлюза и CLI.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	APIURL          string
	RemoteTimeout   time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration

	StorageDriver       string
	StorageDir          string
	RedisAddr           string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// ShippingRate хранится строкой, чтобы Config оставался сравнимым.
	ShippingRate string
	ShippingCap  int64

	LogLevel string
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		APIURL:              "http://localhost:5000",
		RemoteTimeout:       3 * time.Second,
		BreakerFailures:     3,
		BreakerCooldown:     30 * time.Second,
		StorageDriver:       StorageDriverFile,
		StorageDir:          ".marketcart",
		RedisAddr:           "localhost:6379",
		PostgresAutoMigrate: true,
		ShippingRate:        domain.DefaultShippingRate.String(),
		ShippingCap:         domain.DefaultShippingCap,
		LogLevel:            "info",
	}
}

// RemoteEnabled сообщает, настроен ли коллаборатор.
func (c Config) RemoteEnabled() bool {
	v := strings.TrimSpace(c.APIURL)
	return v != "" && !strings.EqualFold(v, RemoteDisabled)
}

// Pricing возвращает правило расчёта доставки. Некорректная ставка заменяется ставкой по умолчанию.
func (c Config) Pricing() domain.PricingPolicy {
	policy := domain.DefaultPricing()
	if rate, err := decimal.NewFromString(strings.TrimSpace(c.ShippingRate)); err == nil && !rate.IsNegative() {
		policy.ShippingRate = rate
	}
	if c.ShippingCap >= 0 {
		policy.ShippingCap = c.ShippingCap
	}
	return policy
}

// EnvLookup совместим с os.LookupEnv.
type EnvLookup func(string) (string, bool)

// ConfigFromEnv читает настройки из окружения. Некорректные значения
// оставляют значение по умолчанию и попадают в warnings.
func ConfigFromEnv(lookup EnvLookup) (Config, []string) {
	cfg := DefaultConfig()
	var warnings []string
	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, value, err))
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvHTTPAddr, &cfg.HTTPAddr)
	str(EnvMetricsAddr, &cfg.MetricsAddr)
	str(EnvAPIURL, &cfg.APIURL)
	str(EnvStorageDir, &cfg.StorageDir)
	str(EnvRedisAddr, &cfg.RedisAddr)
	str(EnvPostgresDSN, &cfg.PostgresDSN)

	if v, ok := lookup(EnvStorageDriver); ok && strings.TrimSpace(v) != "" {
		driver := strings.ToLower(strings.TrimSpace(v))
		switch driver {
		case StorageDriverMemory, StorageDriverFile, StorageDriverRedis, StorageDriverPostgres:
			cfg.StorageDriver = driver
		default:
			warn(EnvStorageDriver, v, errors.New("unsupported storage driver"))
		}
	}

	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}

	positive := func(v time.Duration) bool { return v > 0 }
	if v, ok := lookup(EnvRemoteTimeout); ok {
		if d, err := parseDuration(v, positive, "must be > 0"); err != nil {
			warn(EnvRemoteTimeout, v, err)
		} else {
			cfg.RemoteTimeout = d
		}
	}
	if v, ok := lookup(EnvBreakerCooldown); ok {
		if d, err := parseDuration(v, positive, "must be > 0"); err != nil {
			warn(EnvBreakerCooldown, v, err)
		} else {
			cfg.BreakerCooldown = d
		}
	}
	if v, ok := lookup(EnvBreakerFailures); ok {
		if n, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0"); err != nil {
			warn(EnvBreakerFailures, v, err)
		} else {
			cfg.BreakerFailures = n
		}
	}
	if v, ok := lookup(EnvShippingCap); ok {
		if n, err := parseInt(v, func(n int) bool { return n >= 0 }, "must be >= 0"); err != nil {
			warn(EnvShippingCap, v, err)
		} else {
			cfg.ShippingCap = int64(n)
		}
	}
	if v, ok := lookup(EnvShippingRate); ok {
		rate, err := decimal.NewFromString(strings.TrimSpace(v))
		switch {
		case err != nil:
			warn(EnvShippingRate, v, err)
		case rate.IsNegative():
			warn(EnvShippingRate, v, errors.New("must be >= 0"))
		default:
			cfg.ShippingRate = rate.String()
		}
	}
	if v, ok := lookup(EnvPostgresAutoMigrate); ok {
		if b, err := parseBool(v); err != nil {
			warn(EnvPostgresAutoMigrate, v, err)
		} else {
			cfg.PostgresAutoMigrate = b
		}
	}

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(v) {
		return 0, errors.New(rule)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(v) {
		return 0, errors.New(rule)
	}
	return v, nil
}
