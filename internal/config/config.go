package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

const EnvProduction = "production"

// Config holds application configuration loaded from environment variables.
type Config struct {
	App
	Postgres
	ClickHouse
	Redis
	Kafka
	Worker
	Counter
	Limits
	Circuit
	Anomaly
	Security
	Consent
}

type App struct {
	HTTPPort     string        `env:"HTTP_PORT" envDefault:":8080"`
	AppEnv       string        `env:"APP_ENV" envDefault:"development"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	FiberPrefork bool          `env:"FIBER_PREFORK" envDefault:"false"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"5s"`
	AdminToken   string        `env:"ADMIN_TOKEN"`
}

type Postgres struct {
	DatabaseURL       string        `env:"DATABASE_URL,required"`
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"50"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"10"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	DBMaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
}

type ClickHouse struct {
	ClickHouseAddr     []string      `env:"CLICKHOUSE_ADDR" envSeparator:"," envDefault:"localhost:9000"`
	ClickHouseDatabase string        `env:"CLICKHOUSE_DATABASE" envDefault:"default"`
	ClickHouseUser     string        `env:"CLICKHOUSE_USER" envDefault:"default"`
	ClickHousePassword string        `env:"CLICKHOUSE_PASSWORD"`
	ClickHouseTimeout  time.Duration `env:"CLICKHOUSE_DIAL_TIMEOUT" envDefault:"5s"`
}

// Redis configures the shared counter backend. An empty address keeps counters process-local.
type Redis struct {
	RedisAddr          string        `env:"REDIS_ADDR"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	RedisDB            int           `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix     string        `env:"REDIS_KEY_PREFIX" envDefault:"bas:"`
	RedisDialTimeout   time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"500ms"`
	RedisOpTimeout     time.Duration `env:"REDIS_OP_TIMEOUT" envDefault:"200ms"`
	RedisFailoverAfter int           `env:"COUNTER_FAILOVER_AFTER" envDefault:"1"`
}

// Kafka configures conversion-job publishing. Empty brokers disable it.
type Kafka struct {
	KafkaBrokers         []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaConversionTopic string        `env:"KAFKA_CONVERSION_TOPIC" envDefault:"conversions.pending"`
	RetryMaxAttempts     int           `env:"KAFKA_RETRY_MAX_ATTEMPTS" envDefault:"5"`
	RetryBaseDelay       time.Duration `env:"KAFKA_RETRY_BASE_DELAY" envDefault:"100ms"`
	RetryMaxDelay        time.Duration `env:"KAFKA_RETRY_MAX_DELAY" envDefault:"10s"`
	RetryJitter          bool          `env:"KAFKA_RETRY_JITTER" envDefault:"true"`
}

// Worker sizes the conversion-record batch worker.
type Worker struct {
	WorkerBufferSize int           `env:"WORKER_BUFFER_SIZE" envDefault:"1000"`
	WorkerBatchSize  int           `env:"WORKER_BATCH_SIZE" envDefault:"100"`
	WorkerFlushEvery time.Duration `env:"WORKER_FLUSH_INTERVAL" envDefault:"1s"`
}

type Counter struct {
	LocalMaxEntries int           `env:"COUNTER_LOCAL_MAX_ENTRIES" envDefault:"10000"`
	SweepInterval   time.Duration `env:"COUNTER_SWEEP_INTERVAL" envDefault:"1m"`
}

// Limits holds the named rate-limit windows.
type Limits struct {
	APIMax              int64         `env:"RATE_LIMIT_API_MAX" envDefault:"100"`
	APIWindow           time.Duration `env:"RATE_LIMIT_API_WINDOW" envDefault:"60s"`
	PixelEventsMax      int64         `env:"RATE_LIMIT_PIXEL_MAX" envDefault:"50"`
	PixelEventsWindow   time.Duration `env:"RATE_LIMIT_PIXEL_WINDOW" envDefault:"60s"`
	InvalidKeyMax       int64         `env:"RATE_LIMIT_INVALID_KEY_MAX" envDefault:"10"`
	InvalidKeyWindow    time.Duration `env:"RATE_LIMIT_INVALID_KEY_WINDOW" envDefault:"60s"`
	InvalidOriginMax    int64         `env:"RATE_LIMIT_INVALID_ORIGIN_MAX" envDefault:"10"`
	InvalidOriginWindow time.Duration `env:"RATE_LIMIT_INVALID_ORIGIN_WINDOW" envDefault:"60s"`
}

type Circuit struct {
	CircuitThreshold int64         `env:"CIRCUIT_THRESHOLD" envDefault:"10000"`
	CircuitWindow    time.Duration `env:"CIRCUIT_WINDOW" envDefault:"60s"`
	CircuitCooldown  time.Duration `env:"CIRCUIT_COOLDOWN" envDefault:"5m"`
}

type Anomaly struct {
	AnomalyWindow             time.Duration `env:"ANOMALY_WINDOW" envDefault:"5m"`
	AnomalyBlockCooldown      time.Duration `env:"ANOMALY_BLOCK_COOLDOWN" envDefault:"10m"`
	InvalidKeyThreshold       int64         `env:"ANOMALY_INVALID_KEY_THRESHOLD" envDefault:"20"`
	InvalidOriginThreshold    int64         `env:"ANOMALY_INVALID_ORIGIN_THRESHOLD" envDefault:"10"`
	InvalidTimestampThreshold int64         `env:"ANOMALY_INVALID_TIMESTAMP_THRESHOLD" envDefault:"20"`
	CompositeThreshold        int64         `env:"ANOMALY_COMPOSITE_THRESHOLD" envDefault:"30"`
}

type Security struct {
	TimestampWindow       time.Duration `env:"TIMESTAMP_WINDOW" envDefault:"10m"`
	MaxBodyBytes          int           `env:"MAX_BODY_BYTES" envDefault:"32768"`
	NonceTTL              time.Duration `env:"NONCE_TTL" envDefault:"1h"`
	NonceSweepInterval    time.Duration `env:"NONCE_SWEEP_INTERVAL" envDefault:"10m"`
	AllowUnsignedEvents   bool          `env:"ALLOW_UNSIGNED_EVENTS" envDefault:"false"`
	AllowLocalhostOrigins bool          `env:"ALLOW_LOCALHOST_ORIGINS" envDefault:"false"`
}

type Consent struct {
	StrictAnalytics bool `env:"CONSENT_STRICT_ANALYTICS" envDefault:"false"`
}

// Load reads configuration from environment variables with sane defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with production policy.
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("DATABASE_URL must not be empty")
	}
	if c.IsProduction() && c.AllowUnsignedEvents {
		return errors.New("ALLOW_UNSIGNED_EVENTS cannot be enabled in production")
	}
	if c.IsProduction() {
		c.AllowLocalhostOrigins = false
	}
	windows := map[string]time.Duration{
		"RATE_LIMIT_API_WINDOW":            c.APIWindow,
		"RATE_LIMIT_PIXEL_WINDOW":          c.PixelEventsWindow,
		"RATE_LIMIT_INVALID_KEY_WINDOW":    c.InvalidKeyWindow,
		"RATE_LIMIT_INVALID_ORIGIN_WINDOW": c.InvalidOriginWindow,
		"CIRCUIT_WINDOW":                   c.CircuitWindow,
		"CIRCUIT_COOLDOWN":                 c.CircuitCooldown,
		"ANOMALY_WINDOW":                   c.AnomalyWindow,
		"ANOMALY_BLOCK_COOLDOWN":           c.AnomalyBlockCooldown,
		"TIMESTAMP_WINDOW":                 c.TimestampWindow,
		"NONCE_TTL":                        c.NonceTTL,
		"NONCE_SWEEP_INTERVAL":             c.NonceSweepInterval,
		"COUNTER_SWEEP_INTERVAL":           c.SweepInterval,
	}
	for name, d := range windows {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("MAX_BODY_BYTES must be positive")
	}
	if c.WorkerBufferSize <= 0 || c.WorkerBatchSize <= 0 || c.WorkerFlushEvery <= 0 {
		return errors.New("WORKER_BUFFER_SIZE, WORKER_BATCH_SIZE and WORKER_FLUSH_INTERVAL must be positive")
	}
	if c.LocalMaxEntries <= 0 {
		return errors.New("COUNTER_LOCAL_MAX_ENTRIES must be positive")
	}
	return nil
}
