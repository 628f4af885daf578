package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Secret store backends.
const (
	SecretStoreDynamoDB = "dynamodb"
	SecretStorePostgres = "postgres"
)

// Config holds application configuration loaded from environment variables or config files.
type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"required"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"required,oneof=json console"`

	SecretStore        string `mapstructure:"SECRET_STORE" validate:"required,oneof=dynamodb postgres"`
	WebhookSecretTable string `mapstructure:"WEBHOOK_SECRET_TABLE" validate:"required"`
	DatabaseURL        string `mapstructure:"DATABASE_URL" validate:"required_if=SecretStore postgres,omitempty,url|uri"`

	RedisAddr     string `mapstructure:"REDIS_ADDR" validate:"required,hostname_port"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	AsynqConcurrency int `mapstructure:"ASYNQ_CONCURRENCY" validate:"gte=1,lte=1000"`

	GoMaxProcs int `mapstructure:"GOMAXPROCS" validate:"gte=0,lte=4096"`

	AWSRegion  string `mapstructure:"AWS_REGION" validate:"required"`
	AWSProfile string `mapstructure:"AWS_PROFILE"`

	// APITokenSecret signs the bearer tokens accepted by the HTTP API.
	APITokenSecret string `mapstructure:"API_TOKEN_SECRET" validate:"required,min=32"`

	InstanceAMI  string `mapstructure:"INSTANCE_AMI"`
	InstanceType string `mapstructure:"INSTANCE_TYPE" validate:"required"`

	// StrictProjectLookup limits the find-or-create fallback to
	// "already exists" provider errors.
	StrictProjectLookup bool `mapstructure:"STRICT_PROJECT_LOOKUP"`

	// TrustProxy takes client addresses from forwarding headers.
	TrustProxy bool `mapstructure:"TRUST_PROXY"`

	// RegistryHost prefixes the image references built for webhook events,
	// e.g. 123456789012.dkr.ecr.us-east-1.amazonaws.com.
	RegistryHost       string   `mapstructure:"REGISTRY_HOST" validate:"omitempty,hostname_rfc1123"`
	AppPort            int      `mapstructure:"APP_PORT" validate:"gte=1,lte=65535"`
	DeploymentBranches []string `mapstructure:"DEPLOYMENT_BRANCHES" validate:"dive,required"`
}

var (
	cfg      *Config
	validate = validator.New(validator.WithRequiredStructEnabled())
)

var keys = []string{
	"APP_ENV",
	"HTTP_ADDR",
	"SHUTDOWN_TIMEOUT",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"SECRET_STORE",
	"WEBHOOK_SECRET_TABLE",
	"DATABASE_URL",
	"REDIS_ADDR",
	"REDIS_PASSWORD",
	"ASYNQ_CONCURRENCY",
	"GOMAXPROCS",
	"AWS_REGION",
	"AWS_PROFILE",
	"API_TOKEN_SECRET",
	"INSTANCE_AMI",
	"INSTANCE_TYPE",
	"STRICT_PROJECT_LOOKUP",
	"TRUST_PROXY",
	"REGISTRY_HOST",
	"APP_PORT",
	"DEPLOYMENT_BRANCHES",
}

// Load initializes configuration using Viper. It loads from .env if present,
// applies defaults, binds env vars, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/envforge")

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", "0.0.0.0:8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SECRET_STORE", SecretStoreDynamoDB)
	v.SetDefault("WEBHOOK_SECRET_TABLE", "envforge-github-auth-tokens")
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("ASYNQ_CONCURRENCY", 10)
	v.SetDefault("GOMAXPROCS", 0)
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("INSTANCE_TYPE", "t3.micro")
	v.SetDefault("STRICT_PROJECT_LOOKUP", false)
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("APP_PORT", 80)
	v.SetDefault("DEPLOYMENT_BRANCHES", "master,staging")

	// Optional config file
	_ = v.ReadInConfig()

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	if s := v.GetString("SHUTDOWN_TIMEOUT"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
		}
		c.ShutdownTimeout = d
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(c.GoMaxProcs)
	}

	cfg = &c
	return cfg, nil
}

// MustLoad loads configuration or exits the process on failure.
func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return c
}

// Get returns the loaded configuration. Panics if not loaded.
func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call config.Load or config.MustLoad first")
	}
	return cfg
}

// IsDevelopment reports whether verbose diagnostics are appropriate.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "test"
}
