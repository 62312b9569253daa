package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"ms-activity/internal/models"
)

type Config struct {
	Env       string `env:"APP_ENV" env-default:"local"`
	LogDir    string `env:"LOG_DIR" env-default:"logs"`
	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	Server    ServerConfig
	Auth      AuthConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Lock      LockConfig
	Booking   BookingConfig
	Matching  MatchingConfig
	Billing   BillingConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port            string        `env:"PORT" env-default:":8084"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"60s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

type AuthConfig struct {
	// AdminRole is the realm role that grants the management routes.
	AdminRole string `env:"AUTH_ADMIN_ROLE" env-default:"admin"`
}

type DatabaseConfig struct {
	DSN           string        `env:"POSTGRES_DSN" env-required:"true"`
	MaxOpenConns  int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns  int           `env:"DB_MAX_IDLE_CONNS" env-default:"25"`
	MaxLifetime   time.Duration `env:"DB_MAX_LIFETIME" env-default:"5m"`
	ConnectTries  int           `env:"DB_CONNECT_TRIES" env-default:"5"`
	MigrationsDir string        `env:"MIGRATIONS_DIR" env-default:"./migrations"`
	AutoMigrate   bool          `env:"AUTO_MIGRATE" env-default:"true"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR" env-default:"localhost:6379"`
}

type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	GroupID string   `env:"KAFKA_GROUP_ID" env-default:"activity-service"`
	Enabled bool     `env:"KAFKA_ENABLED" env-default:"true"`
}

type LockConfig struct {
	// Backend is "postgres" or "redis".
	Backend string        `env:"LOCK_BACKEND" env-default:"postgres"`
	TTL     time.Duration `env:"LOCK_TTL" env-default:"10m"`
	Strict  bool          `env:"LOCK_STRICT_NAMESPACES" env-default:"false"`
}

type BookingConfig struct {
	MaxStars int `env:"BOOKING_MAX_STARS" env-default:"3"`
}

type MatchingConfig struct {
	// Scoring is a comma separated list of criteria, see matching.ParseScoring.
	Scoring        string `env:"MATCHING_SCORING" env-default:"prefer-motivated"`
	EnforceMinimum bool   `env:"MATCHING_ENFORCE_MINIMUM" env-default:"true"`
}

type BillingConfig struct {
	Currency       string   `env:"BILLING_CURRENCY" env-default:"CHF"`
	CreditorName   string   `env:"BILLING_CREDITOR_NAME" env-default:""`
	CreditorIBAN   string   `env:"BILLING_CREDITOR_IBAN" env-default:""`
	ESRPrefix      string   `env:"BILLING_ESR_PREFIX" env-default:""`
	Schemes        []string `env:"BILLING_REFERENCE_SCHEMES" env-separator:"," env-default:"generic"`
	QRCodeSize     int      `env:"BILLING_QR_SIZE" env-default:"256"`
	BookingGroup   string   `env:"BILLING_BOOKING_GROUP" env-default:"Activities"`
	InclusiveLabel string   `env:"BILLING_ALL_INCLUSIVE_TEXT" env-default:"All-inclusive pass"`
}

type SchedulerConfig struct {
	Enabled  bool          `env:"SCHEDULER_ENABLED" env-default:"true"`
	Interval time.Duration `env:"SCHEDULER_INTERVAL" env-default:"1h"`
}

// Load reads the configuration from the environment. Call godotenv.Load
// first when a .env file should be honoured.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Lock.Backend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("config: unknown lock backend %q", c.Lock.Backend)
	}
	if c.Booking.MaxStars < 1 {
		return fmt.Errorf("config: BOOKING_MAX_STARS must be positive")
	}
	for _, s := range c.Billing.Schemes {
		switch models.ReferenceScheme(s) {
		case models.SchemeGeneric, models.SchemeESR, models.SchemeQRIBAN:
		default:
			return fmt.Errorf("config: unknown reference scheme %q", s)
		}
	}
	return nil
}

func (c *Config) ReferenceSchemes() []models.ReferenceScheme {
	schemes := make([]models.ReferenceScheme, 0, len(c.Billing.Schemes))
	for _, s := range c.Billing.Schemes {
		schemes = append(schemes, models.ReferenceScheme(s))
	}
	return schemes
}
