package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	PaymentModeSimulate = "simulate"
	PaymentModeWebhook  = "webhook"

	GatewayModeSim      = "sim"
	GatewayModeTelegram = "telegram"
)

type HTTPConfig struct {
	Port            string        `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"HTTP_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"HTTP_SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url" envconfig:"POSTGRES_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"POSTGRES_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"POSTGRES_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"POSTGRES_CONN_MAX_LIFETIME"`
	MigrationsPath  string        `yaml:"migrations_path" envconfig:"MIGRATIONS_PATH"`
	AutoMigrate     bool          `yaml:"auto_migrate" envconfig:"AUTO_MIGRATE"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string        `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" envconfig:"REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" envconfig:"REDIS_TTL"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" envconfig:"KAFKA_BROKERS"`
	GroupID string   `yaml:"group_id" envconfig:"KAFKA_GROUP_ID"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
}

type PaymentsConfig struct {
	Mode          string `yaml:"mode" envconfig:"PAYMENTS_MODE"`
	WebhookSecret string `yaml:"webhook_secret" envconfig:"WEBHOOK_SECRET"`
	Currency      string `yaml:"currency" envconfig:"PAYMENTS_CURRENCY"`
	MaxDownloads  int    `yaml:"max_downloads" envconfig:"MAX_DOWNLOADS"`
}

type GatewayConfig struct {
	Mode          string        `yaml:"mode" envconfig:"BOT_GATEWAY_MODE"`
	URL           string        `yaml:"url" envconfig:"BOT_GATEWAY_URL"`
	BotToken      string        `yaml:"bot_token" envconfig:"BOT_TOKEN"`
	APIURL        string        `yaml:"api_url" envconfig:"TELEGRAM_API_URL"`
	ProviderToken string        `yaml:"provider_token" envconfig:"PAYMENT_PROVIDER_TOKEN"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"BOT_GATEWAY_TIMEOUT"`
	Retries       int           `yaml:"retries" envconfig:"BOT_GATEWAY_RETRIES"`
	RetryBackoff  time.Duration `yaml:"retry_backoff" envconfig:"BOT_GATEWAY_RETRY_BACKOFF"`
	MaxFailures   int           `yaml:"max_failures" envconfig:"BOT_GATEWAY_MAX_FAILURES"`
	ResetTimeout  time.Duration `yaml:"reset_timeout" envconfig:"BOT_GATEWAY_RESET_TIMEOUT"`
	DemoLifetime  time.Duration `yaml:"demo_lifetime" envconfig:"DEMO_LIFETIME"`
}

// BotSimConfig tunes the mock gateway service.
type BotSimConfig struct {
	MinDelay    time.Duration `yaml:"min_delay" envconfig:"BOTSIM_MIN_DELAY"`
	MaxDelay    time.Duration `yaml:"max_delay" envconfig:"BOTSIM_MAX_DELAY"`
	FailureRate float64       `yaml:"failure_rate" envconfig:"BOTSIM_FAILURE_RATE"`
}

type StorageConfig struct {
	TemplatesDir string `yaml:"templates_dir" envconfig:"TEMPLATES_DIR"`
	PublicURL    string `yaml:"public_url" envconfig:"PUBLIC_URL"`
}

type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name" envconfig:"OTEL_SERVICE_NAME"`
	OTLPEndpoint string `yaml:"otlp_endpoint" envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

type LogConfig struct {
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Auth      AuthConfig      `yaml:"auth"`
	Payments  PaymentsConfig  `yaml:"payments"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	BotSim    BotSimConfig    `yaml:"botsim"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads the optional YAML file at path, overlays environment
// variables and applies defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Path returns the config file path from -config or CONFIG_PATH.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("CONFIG_PATH")
}

func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}

	if cfg.HTTP.ReadTimeout <= 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout <= 0 {
		cfg.HTTP.WriteTimeout = 10 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime <= 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.MigrationsPath == "" {
		cfg.Database.MigrationsPath = "file://migrations"
	}

	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = 5 * time.Minute
	}

	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "botmarket-notifier"
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.Payments.Mode))
	if mode == "" {
		mode = PaymentModeSimulate
	}
	switch mode {
	case PaymentModeSimulate:
	case PaymentModeWebhook:
		if cfg.Payments.WebhookSecret == "" {
			return errors.New("payments.webhook_secret is required when payments.mode is 'webhook'")
		}
	default:
		return fmt.Errorf("invalid payments.mode %q; allowed: simulate, webhook", cfg.Payments.Mode)
	}
	cfg.Payments.Mode = mode
	if cfg.Payments.Currency == "" {
		cfg.Payments.Currency = "USD"
	}
	cfg.Payments.Currency = strings.ToUpper(cfg.Payments.Currency)
	if cfg.Payments.MaxDownloads <= 0 {
		cfg.Payments.MaxDownloads = 5
	}

	gw := strings.ToLower(strings.TrimSpace(cfg.Gateway.Mode))
	if gw == "" {
		gw = GatewayModeSim
	}
	switch gw {
	case GatewayModeSim:
		if cfg.Gateway.URL == "" {
			cfg.Gateway.URL = "http://localhost:8084"
		}
	case GatewayModeTelegram:
		if cfg.Gateway.BotToken == "" {
			return errors.New("gateway.bot_token is required when gateway.mode is 'telegram'")
		}
	default:
		return fmt.Errorf("invalid gateway.mode %q; allowed: sim, telegram", cfg.Gateway.Mode)
	}
	cfg.Gateway.Mode = gw
	if cfg.Gateway.Timeout <= 0 {
		cfg.Gateway.Timeout = 10 * time.Second
	}
	if cfg.Gateway.Retries < 0 {
		return errors.New("gateway.retries must be >= 0")
	}
	if cfg.Gateway.RetryBackoff <= 0 {
		cfg.Gateway.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.Gateway.MaxFailures <= 0 {
		cfg.Gateway.MaxFailures = 5
	}
	if cfg.Gateway.ResetTimeout <= 0 {
		cfg.Gateway.ResetTimeout = 30 * time.Second
	}
	if cfg.Gateway.DemoLifetime <= 0 {
		cfg.Gateway.DemoLifetime = 24 * time.Hour
	}

	if cfg.BotSim.MinDelay < 0 || cfg.BotSim.MaxDelay < cfg.BotSim.MinDelay {
		return errors.New("botsim delays must satisfy 0 <= min_delay <= max_delay")
	}
	if cfg.BotSim.FailureRate < 0 || cfg.BotSim.FailureRate > 1 {
		return errors.New("botsim.failure_rate must be between 0 and 1")
	}

	if cfg.Storage.TemplatesDir == "" {
		cfg.Storage.TemplatesDir = "templates"
	}
	if cfg.Storage.PublicURL == "" {
		cfg.Storage.PublicURL = "http://localhost:8080"
	}
	cfg.Storage.PublicURL = strings.TrimRight(cfg.Storage.PublicURL, "/")

	if cfg.Telemetry.OTLPEndpoint == "" {
		cfg.Telemetry.OTLPEndpoint = "localhost:4317"
	}

	if _, err := parseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}

// RequireDatabase reports an error when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return errors.New("database.url (POSTGRES_URL) is required")
	}
	return nil
}

// LogLevel returns the configured slog level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log.level %q; allowed: debug, info, warn, error", s)
}

// NewLogger builds the JSON logger every service writes to stdout.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: c.LogLevel()}))
}
