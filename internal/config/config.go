package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	AI        AIConfig        `mapstructure:"ai"`
	Maps      MapsConfig      `mapstructure:"maps"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Feed      FeedConfig      `mapstructure:"feed"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Security  SecurityConfig  `mapstructure:"security"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`

	// HealthPort serves the worker's health and metrics endpoints.
	HealthPort int `mapstructure:"health_port"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	Channel      string        `mapstructure:"channel"`
}

type StorageConfig struct {
	Driver  string `mapstructure:"driver"`
	Migrate bool   `mapstructure:"migrate"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	Issuer     string        `mapstructure:"issuer"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

type AIConfig struct {
	Provider     string        `mapstructure:"provider"`
	GeminiAPIKey string        `mapstructure:"gemini_api_key"`
	OpenAIAPIKey string        `mapstructure:"openai_api_key"`
	Model        string        `mapstructure:"model"`
	Endpoint     string        `mapstructure:"endpoint"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

type MapsConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type OutboxConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
	Retention       time.Duration `mapstructure:"retention"`
}

type FeedConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// secrets are read from DISPATCH_* variables and override the file.
type secrets struct {
	JWTSecret    string `envconfig:"JWT_SECRET"`
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	MapsAPIKey   string `envconfig:"MAPS_API_KEY"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	DBPassword   string `envconfig:"DB_PASSWORD"`
	RedisURL     string `envconfig:"REDIS_URL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.health_port", 8081)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "dispatch")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.channel", "dispatch.events")

	v.SetDefault("storage.driver", StoragePostgres)
	v.SetDefault("storage.migrate", true)

	v.SetDefault("auth.issuer", "dispatch-api")
	v.SetDefault("auth.session_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("ai.provider", ProviderGemini)
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.endpoint", "")
	v.SetDefault("ai.timeout", 8*time.Second)
	v.SetDefault("ai.cache_ttl", 10*time.Minute)

	v.SetDefault("maps.timeout", 3*time.Second)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "dispatch@localhost")

	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.retry_attempts", 5)
	v.SetDefault("outbox.retry_delay", 10*time.Second)
	v.SetDefault("outbox.cleanup_schedule", "@hourly")
	v.SetDefault("outbox.retention", 72*time.Hour)

	v.SetDefault("feed.interval", 5*time.Second)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("security.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yml from the usual locations, then overlays
// environment variables. A missing file is not an error.
func LoadConfig(paths ...string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var s secrets
	if err := envconfig.Process("DISPATCH", &s); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg.applySecrets(s)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applySecrets(s secrets) {
	override := func(dst *string, val string) {
		if val != "" {
			*dst = val
		}
	}
	override(&c.Auth.JWTSecret, s.JWTSecret)
	override(&c.AI.GeminiAPIKey, s.GeminiAPIKey)
	override(&c.AI.OpenAIAPIKey, s.OpenAIAPIKey)
	override(&c.Maps.APIKey, s.MapsAPIKey)
	override(&c.SMTP.Password, s.SMTPPassword)
	override(&c.Database.Password, s.DBPassword)
	override(&c.Redis.URL, s.RedisURL)
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.AI.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown ai provider %q", c.AI.Provider)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required (DISPATCH_JWT_SECRET)")
	}
	if c.Feed.Interval <= 0 {
		return errors.New("feed.interval must be positive")
	}
	// an intake makes up to three sequential AI calls inside one request
	if c.Server.RequestTimeout > 0 && 3*c.AI.Timeout >= c.Server.RequestTimeout {
		return fmt.Errorf("ai.timeout (%s) must be less than a third of server.request_timeout (%s)",
			c.AI.Timeout, c.Server.RequestTimeout)
	}
	return nil
}

// APIKey returns the key for the configured provider.
func (c AIConfig) APIKey() string {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}
