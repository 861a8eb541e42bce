package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the audience services.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	AWS       AWSConfig       `yaml:"aws"`
	Storage   StorageConfig   `yaml:"storage"`
	Queue     QueueConfig     `yaml:"queue"`
	Mail      MailConfig      `yaml:"mail"`
	Stripe    StripeConfig    `yaml:"stripe"`
	Campaigns CampaignsConfig `yaml:"campaigns"`
	Import    ImportConfig    `yaml:"import"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int      `yaml:"port"`
	Host            string   `yaml:"host"`
	CORSOrigins     []string `yaml:"cors_origins"`
	ShutdownSeconds int      `yaml:"shutdown_seconds"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for the listener.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// ShutdownTimeout bounds graceful shutdown.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownSeconds) * time.Second
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis connection used for leases and progress.
// An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AWSConfig holds the shared AWS settings.
type AWSConfig struct {
	Region          string `yaml:"region"`
	Profile         string `yaml:"profile"` // Empty string uses default credential chain (IAM role on ECS)
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GetProfile returns the AWS profile, with environment variable override
func (c AWSConfig) GetProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.Profile
}

// StorageConfig selects where uploaded CSV files live.
type StorageConfig struct {
	Type      string `yaml:"type"` // "local" or "s3"
	LocalPath string `yaml:"local_path"`
	S3Bucket  string `yaml:"s3_bucket"`
	S3Prefix  string `yaml:"s3_prefix"`
}

// QueueConfig selects the job transport.
type QueueConfig struct {
	Driver       string `yaml:"driver"` // "local" or "sqs"
	SQSQueueURL  string `yaml:"sqs_queue_url"`
	LocalWorkers int    `yaml:"local_workers"`
	LocalDepth   int    `yaml:"local_depth"`
}

// MailConfig holds support notification settings.
type MailConfig struct {
	Driver           string `yaml:"driver"` // "ses" or "log"
	From             string `yaml:"from"`
	SupportTo        string `yaml:"support_to"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// StripeConfig holds overage billing settings. An empty SecretKey disables
// billing.
type StripeConfig struct {
	SecretKey       string `yaml:"secret_key"`
	PricePerContact string `yaml:"price_per_contact"`
	Currency        string `yaml:"currency"`
}

// Price parses PricePerContact.
func (c StripeConfig) Price() (decimal.Decimal, error) {
	if c.PricePerContact == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(c.PricePerContact)
}

// CampaignsConfig points at the campaign sender.
type CampaignsConfig struct {
	RunnerURL      string `yaml:"runner_url"`
	Token          string `yaml:"token"`
	MaxRetries     int    `yaml:"max_retries"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-request timeout as a duration
func (c CampaignsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ImportConfig tunes the CSV import.
type ImportConfig struct {
	Ways int `yaml:"ways"`
}

// DedupConfig tunes the deduplication job.
type DedupConfig struct {
	LeaseTTLSeconds int `yaml:"lease_ttl_seconds"`
}

// LeaseTTL returns the tenant lease lifetime.
func (c DedupConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSeconds) * time.Second
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on; it defaults to true.
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ShutdownSeconds == 0 {
		cfg.Server.ShutdownSeconds = 15
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-west-2"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data"
	}
	if cfg.Queue.Driver == "" {
		cfg.Queue.Driver = "local"
	}
	if cfg.Queue.LocalWorkers == 0 {
		cfg.Queue.LocalWorkers = 2
	}
	if cfg.Queue.LocalDepth == 0 {
		cfg.Queue.LocalDepth = 64
	}
	if cfg.Mail.Driver == "" {
		cfg.Mail.Driver = "ses"
	}
	if cfg.Stripe.Currency == "" {
		cfg.Stripe.Currency = "usd"
	}
	if cfg.Campaigns.MaxRetries == 0 {
		cfg.Campaigns.MaxRetries = 3
	}
	if cfg.Campaigns.TimeoutSeconds == 0 {
		cfg.Campaigns.TimeoutSeconds = 30
	}
	if cfg.Import.Ways == 0 {
		cfg.Import.Ways = 10
	}
	if cfg.Dedup.LeaseTTLSeconds == 0 {
		cfg.Dedup.LeaseTTLSeconds = 900
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "INFO"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	str("DATABASE_URL", &cfg.Database.URL)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("AWS_REGION", &cfg.AWS.Region)
	str("AWS_ACCESS_KEY_ID", &cfg.AWS.AccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &cfg.AWS.SecretAccessKey)
	str("S3_BUCKET", &cfg.Storage.S3Bucket)
	str("SQS_QUEUE_URL", &cfg.Queue.SQSQueueURL)
	str("MAIL_FROM", &cfg.Mail.From)
	str("SUPPORT_EMAIL", &cfg.Mail.SupportTo)
	str("STRIPE_SECRET_KEY", &cfg.Stripe.SecretKey)
	str("CAMPAIGN_RUNNER_URL", &cfg.Campaigns.RunnerURL)
	str("CAMPAIGN_RUNNER_TOKEN", &cfg.Campaigns.Token)
	str("LOG_LEVEL", &cfg.Log.Level)

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
}

// Validate reports every missing or malformed setting at once.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	switch cfg.Storage.Type {
	case "local":
	case "s3":
		if cfg.Storage.S3Bucket == "" {
			errs = append(errs, errors.New("storage.s3_bucket is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type %q is not supported", cfg.Storage.Type))
	}
	switch cfg.Queue.Driver {
	case "local":
	case "sqs":
		if cfg.Queue.SQSQueueURL == "" {
			errs = append(errs, errors.New("queue.sqs_queue_url is required for the sqs driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("queue.driver %q is not supported", cfg.Queue.Driver))
	}
	switch cfg.Mail.Driver {
	case "ses", "log":
	default:
		errs = append(errs, fmt.Errorf("mail.driver %q is not supported", cfg.Mail.Driver))
	}
	if cfg.Mail.SupportTo == "" {
		errs = append(errs, errors.New("mail.support_to is required"))
	}
	if cfg.Mail.Driver == "ses" && cfg.Mail.From == "" {
		errs = append(errs, errors.New("mail.from is required for ses"))
	}
	if price, err := cfg.Stripe.Price(); err != nil {
		errs = append(errs, fmt.Errorf("stripe.price_per_contact: %w", err))
	} else if price.IsNegative() {
		errs = append(errs, errors.New("stripe.price_per_contact must not be negative"))
	}
	if cfg.Import.Ways < 1 {
		errs = append(errs, errors.New("import.ways must be at least 1"))
	}
	return errors.Join(errs...)
}
