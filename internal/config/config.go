package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/dashboard-notifications/internal/client/dashboard"
	"github.com/jwalitptl/dashboard-notifications/pkg/logger"
	"github.com/jwalitptl/dashboard-notifications/pkg/messaging/redis"
)

const envPrefix = "NOTIFIER"

const (
	BackendStatic  = "static"
	BackendRedis   = "redis"
	BackendKeyring = "keyring"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	API        APIConfig        `mapstructure:"api"`
	Poll       PollConfig       `mapstructure:"poll"`
	Credential CredentialConfig `mapstructure:"credential"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type APIConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	DashboardPath     string        `mapstructure:"dashboard_path"`
	AlertsPath        string        `mapstructure:"alerts_path"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	BreakerFailures   int           `mapstructure:"breaker_failures"`
	BreakerTimeout    time.Duration `mapstructure:"breaker_timeout"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
}

type PollConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type CredentialConfig struct {
	Backend         string        `mapstructure:"backend"`
	Token           string        `mapstructure:"token"`
	RedisKey        string        `mapstructure:"redis_key"`
	KeyringService  string        `mapstructure:"keyring_service"`
	KeyringKey      string        `mapstructure:"keyring_key"`
	KeyringFileDir  string        `mapstructure:"keyring_file_dir"`
	KeyringPassword string        `mapstructure:"keyring_password"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CheckExpiry     bool          `mapstructure:"check_expiry"`
}

type RedisConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	Channel        string        `mapstructure:"channel"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	PoolSize       int           `mapstructure:"pool_size"`
	MinIdleConns   int           `mapstructure:"min_idle_conns"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// secrets are read straight from the environment so they never need to
// live in config.yml.
type secrets struct {
	APIToken string `envconfig:"API_TOKEN"`
	RedisURL string `envconfig:"REDIS_URL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("api.base_url", "http://localhost:3000")
	v.SetDefault("api.dashboard_path", dashboard.DefaultNotificationsPath)
	v.SetDefault("api.alerts_path", dashboard.DefaultAlertsPath)
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.requests_per_second", 5.0)
	v.SetDefault("api.burst", 5)
	v.SetDefault("api.breaker_failures", 5)
	v.SetDefault("api.breaker_timeout", 30*time.Second)
	v.SetDefault("api.max_body_bytes", dashboard.DefaultMaxBodyBytes)

	v.SetDefault("poll.interval", 30*time.Second)
	v.SetDefault("poll.fetch_timeout", 15*time.Second)

	v.SetDefault("credential.backend", BackendStatic)
	v.SetDefault("credential.token", "")
	v.SetDefault("credential.redis_key", "dashboard:api_token")
	v.SetDefault("credential.keyring_service", "dashboard-notifications")
	v.SetDefault("credential.keyring_key", "api_token")
	v.SetDefault("credential.keyring_file_dir", "")
	v.SetDefault("credential.keyring_password", "")
	v.SetDefault("credential.cache_ttl", time.Minute)
	v.SetDefault("credential.check_expiry", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.channel", "dashboard.notifications")
	v.SetDefault("redis.publish_timeout", 5*time.Second)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// LoadConfig reads config.yml from the usual locations, or from file when
// it is set. A missing config.yml is not an error; defaults and the
// environment cover every key.
func LoadConfig(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var s secrets
	if err := envconfig.Process(envPrefix, &s); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if s.APIToken != "" {
		config.Credential.Token = s.APIToken
	}
	if s.RedisURL != "" {
		config.Redis.URL = s.RedisURL
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.API.BaseURL) == "":
		return errors.New("invalid config: api.base_url is required")
	case c.Poll.Interval <= 0:
		return fmt.Errorf("invalid config: poll.interval must be positive, got %s", c.Poll.Interval)
	case c.Poll.FetchTimeout <= 0:
		return fmt.Errorf("invalid config: poll.fetch_timeout must be positive, got %s", c.Poll.FetchTimeout)
	case c.API.MaxBodyBytes <= 0:
		return fmt.Errorf("invalid config: api.max_body_bytes must be positive, got %d", c.API.MaxBodyBytes)
	case c.Server.Port <= 0:
		return fmt.Errorf("invalid config: server.port must be positive, got %d", c.Server.Port)
	}

	switch c.Credential.Backend {
	case BackendStatic, BackendRedis, BackendKeyring:
	default:
		return fmt.Errorf("invalid config: unknown credential.backend %q", c.Credential.Backend)
	}

	if c.Redis.Enabled && c.Redis.Channel == "" {
		return errors.New("invalid config: redis.channel is required when redis is enabled")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return errors.New("invalid config: rate_limit needs positive requests_per_second and burst")
	}
	return nil
}

// NeedsRedis reports whether any component talks to redis.
func (c *Config) NeedsRedis() bool {
	return c.Redis.Enabled || c.Credential.Backend == BackendRedis
}

func (c *APIConfig) ToClientConfig() dashboard.Config {
	return dashboard.Config{
		BaseURL:           c.BaseURL,
		NotificationsPath: c.DashboardPath,
		AlertsPath:        c.AlertsPath,
		Timeout:           c.Timeout,
		MaxRetries:        c.MaxRetries,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		BreakerFailures:   c.BreakerFailures,
		BreakerTimeout:    c.BreakerTimeout,
		MaxBodyBytes:      c.MaxBodyBytes,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *LogConfig) ToLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      logger.ParseLevel(c.Level),
		TimeFormat: time.RFC3339,
		JSON:       c.JSON,
	}
}
