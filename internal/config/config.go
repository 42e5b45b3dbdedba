package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MiddlewareTimeout time.Duration `mapstructure:"middleware_timeout"`
}

// RegistryConfig selects and configures the session registry backend
type RegistryConfig struct {
	Driver   string         `mapstructure:"driver" validate:"oneof=sqlite redis postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type SQLiteConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled reports whether a redis host is configured
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// AssistantConfig holds the remote conversation API settings and the
// defaults used when a request does not override them
type AssistantConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	APIKey         string        `mapstructure:"api_key"`
	AssistantID    string        `mapstructure:"assistant_id"`
	ThreadID       string        `mapstructure:"thread_id"`
	PollInterval   time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	RunTimeout     time.Duration `mapstructure:"run_timeout" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	AdminTokenTTL time.Duration `mapstructure:"admin_token_ttl"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string        `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string        `mapstructure:"format" validate:"oneof=json console"`
	File   string        `mapstructure:"file"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file path
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	// Override with environment variables
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct tags on the loaded configuration and that a
// request outlives the longest run wait
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	wait := c.Assistant.RunTimeout + c.Assistant.RequestTimeout
	if c.Server.MiddlewareTimeout <= wait {
		return fmt.Errorf("invalid configuration: server.middleware_timeout %s must exceed assistant.run_timeout plus assistant.request_timeout (%s)",
			c.Server.MiddlewareTimeout, wait)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "4m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.middleware_timeout", "3m30s")

	// Registry
	v.SetDefault("registry.driver", "sqlite")
	v.SetDefault("registry.sqlite.path", "./data/threads.db")
	v.SetDefault("registry.sqlite.busy_timeout", "5s")
	v.SetDefault("registry.redis.port", 6379)
	v.SetDefault("registry.redis.db", 0)
	v.SetDefault("registry.redis.key_prefix", "threads:")
	v.SetDefault("registry.postgres.host", "localhost")
	v.SetDefault("registry.postgres.port", 5432)
	v.SetDefault("registry.postgres.user", "threadrouter")
	v.SetDefault("registry.postgres.database", "threadrouter")
	v.SetDefault("registry.postgres.ssl_mode", "disable")
	v.SetDefault("registry.postgres.max_conns", 10)
	v.SetDefault("registry.postgres.min_conns", 1)

	// Assistant
	v.SetDefault("assistant.base_url", "https://api.openai.com/v1")
	v.SetDefault("assistant.poll_interval", "500ms")
	v.SetDefault("assistant.run_timeout", "2m")
	v.SetDefault("assistant.request_timeout", "60s")

	// Auth
	v.SetDefault("auth.admin_token_ttl", "24h")

	// Security
	v.SetDefault("security.rate_limit.enabled", false)
	v.SetDefault("security.rate_limit.requests_per_minute", 20)
	v.SetDefault("security.rate_limit.burst", 5)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.max_age", "168h") // 7 days
}

func bindEnvVars(v *viper.Viper) {
	// Registry
	v.BindEnv("registry.driver", "REGISTRY_DRIVER")
	v.BindEnv("registry.sqlite.path", "REGISTRY_SQLITE_PATH")
	v.BindEnv("registry.redis.host", "REDIS_HOST")
	v.BindEnv("registry.redis.password", "REDIS_PASSWORD")
	v.BindEnv("registry.postgres.host", "POSTGRES_HOST")
	v.BindEnv("registry.postgres.password", "POSTGRES_PASSWORD")

	// Assistant
	v.BindEnv("assistant.api_key", "OPENAI_API_KEY")
	v.BindEnv("assistant.base_url", "OPENAI_BASE_URL")
	v.BindEnv("assistant.assistant_id", "OPENAI_ASSISTANT_ID")
	v.BindEnv("assistant.thread_id", "OPENAI_THREAD_ID")

	// Auth
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.file", "LOG_FILE")
}
