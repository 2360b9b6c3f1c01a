package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"salesconsumer/internal/infrastructure/database"
)

// MaxRetryAttempts bounds RETRY_MAX_ATTEMPTS so that RETRY_BASE_DELAY * 2^attempts
// stays within a time.Duration.
const MaxRetryAttempts = 16

type Config struct {
	AppName         string        `env:"APP_NAME" envDefault:"salesconsumer"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"true"`

	HTTPAllowedOrigins []string `env:"HTTP_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	DBConfig struct {
		Driver          string        `env:"DB_DRIVER" envDefault:"sqlite"`
		Host            string        `env:"DB_HOST" envDefault:"localhost"`
		Port            int           `env:"DB_PORT" envDefault:"5432"`
		User            string        `env:"DB_USER" envDefault:"user"`
		Password        string        `env:"DB_PASSWORD" envDefault:"password"`
		Name            string        `env:"DB_NAME" envDefault:"sales_db"`
		SSLMode         string        `env:"DB_SSL_MODE" envDefault:"disable"`
		SQLitePath      string        `env:"SQLITE_PATH" envDefault:"data/enterprise.db"`
		ConnectAttempts int           `env:"DB_CONNECT_ATTEMPTS" envDefault:"10"`
		ConnectDelay    time.Duration `env:"DB_CONNECT_DELAY" envDefault:"1s"`
	}

	KafkaBrokers         []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	KafkaTopic           string   `env:"KAFKA_TOPIC" envDefault:"sales-events"`
	KafkaGroupID         string   `env:"KAFKA_GROUP_ID" envDefault:"salesconsumer-group"`
	KafkaAutoOffsetReset string   `env:"KAFKA_AUTO_OFFSET_RESET" envDefault:"earliest"`
	KafkaEnsureTopic     bool     `env:"KAFKA_ENSURE_TOPIC" envDefault:"false"`

	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay   time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`

	QuarantineFile  string `env:"QUARANTINE_FILE" envDefault:"logs/unidentified_messages.log"`
	QuarantineTopic string `env:"QUARANTINE_TOPIC"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxPollTimeout  time.Duration `env:"OUTBOX_POLL_TIMEOUT" envDefault:"10s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"10"`
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig() (*Config, error) {
	return parse(env.Options{})
}

// LoadConfigFrom reads the configuration from environ instead of the process
// environment.
func LoadConfigFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.KafkaBrokers = trimAll(cfg.KafkaBrokers)
	cfg.HTTPAllowedOrigins = trimAll(cfg.HTTPAllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if !database.Driver(c.DBConfig.Driver).Valid() {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBConfig.Driver))
	}
	if len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required"))
	}
	if strings.TrimSpace(c.KafkaTopic) == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required"))
	}
	if strings.TrimSpace(c.KafkaGroupID) == "" {
		errs = append(errs, errors.New("KAFKA_GROUP_ID is required"))
	}
	switch strings.ToLower(c.KafkaAutoOffsetReset) {
	case "earliest", "latest":
	default:
		errs = append(errs, fmt.Errorf("KAFKA_AUTO_OFFSET_RESET must be earliest or latest, got %q", c.KafkaAutoOffsetReset))
	}
	if c.RetryMaxAttempts < 1 || c.RetryMaxAttempts > MaxRetryAttempts {
		errs = append(errs, fmt.Errorf("RETRY_MAX_ATTEMPTS must be between 1 and %d", MaxRetryAttempts))
	}
	if c.RetryBaseDelay <= 0 {
		errs = append(errs, errors.New("RETRY_BASE_DELAY must be positive"))
	}
	if c.DBConfig.ConnectAttempts < 1 {
		errs = append(errs, errors.New("DB_CONNECT_ATTEMPTS must be at least 1"))
	}
	if c.QuarantineTopic != "" && (c.OutboxPollInterval <= 0 || c.OutboxPollTimeout <= 0) {
		errs = append(errs, errors.New("OUTBOX_POLL_INTERVAL and OUTBOX_POLL_TIMEOUT must be positive"))
	}
	if strings.TrimSpace(c.QuarantineFile) == "" {
		errs = append(errs, errors.New("QUARANTINE_FILE is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) Database() database.DBConfig {
	return database.DBConfig{
		Driver:     database.Driver(c.DBConfig.Driver),
		Host:       c.DBConfig.Host,
		Port:       c.DBConfig.Port,
		User:       c.DBConfig.User,
		Password:   c.DBConfig.Password,
		DBName:     c.DBConfig.Name,
		SSLMode:    c.DBConfig.SSLMode,
		SQLitePath: c.DBConfig.SQLitePath,
	}
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
