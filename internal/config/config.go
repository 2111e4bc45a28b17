// Package config loads server configuration from an optional YAML file and
// environment variables. Environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`
	Events    EventsConfig    `yaml:"events"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// AuthConfig holds the bearer token secret.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LLMConfig selects the inference provider.
type LLMConfig struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	LLMTimeout    time.Duration `yaml:"llm_timeout"`
	HistoryLimit  int           `yaml:"history_limit"`
}

// EventsConfig selects where run events are published.
type EventsConfig struct {
	Backend string `yaml:"backend"`

	NATSURL      string `yaml:"nats_url"`
	NATSStream   string `yaml:"nats_stream"`
	NATSCAFile   string `yaml:"nats_ca_file"`
	NATSCertFile string `yaml:"nats_cert_file"`
	NATSKeyFile  string `yaml:"nats_key_file"`
	NATSToken    string `yaml:"nats_token"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisStream   string `yaml:"redis_stream"`
	RedisMaxLen   int64  `yaml:"redis_max_len"`

	RabbitMQURL   string `yaml:"rabbitmq_url"`
	RabbitMQQueue string `yaml:"rabbitmq_queue"`
}

// RateLimitConfig limits requests per owner.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// TracingConfig configures the OTLP exporter.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

const (
	devSecret = "development-secret-change-in-production"

	// writeMargin covers tool execution and persistence on top of the
	// inference budget of a chat turn.
	writeMargin = 30 * time.Second
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "file:assistant.db?_foreign_keys=on&_busy_timeout=5000",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Auth: AuthConfig{JWTSecret: devSecret},
		LLM:  LLMConfig{Provider: "openai"},
		Agent: AgentConfig{
			MaxIterations: 5,
			LLMTimeout:    30 * time.Second,
			HistoryLimit:  50,
		},
		Events: EventsConfig{
			Backend:    "none",
			NATSURL:    "nats://localhost:4222",
			NATSStream: "AGENT_RUNS",
		},
		RateLimit: RateLimitConfig{Requests: 60, Window: time.Minute},
		Logging:   LoggingConfig{Level: "info"},
		Tracing:   TracingConfig{Endpoint: "localhost:4318"},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.fitWriteTimeout()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "PORT")
	setDuration(&c.Server.ReadTimeout, "SERVER_READ_TIMEOUT")
	setDuration(&c.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT")
	setList(&c.Server.AllowedOrigins, "CORS_ALLOWED_ORIGINS")

	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.DSN, "DB_DSN")
	setInt(&c.Database.MaxOpenConns, "DB_MAX_OPEN_CONNS")
	setInt(&c.Database.MaxIdleConns, "DB_MAX_IDLE_CONNS")
	setDuration(&c.Database.ConnMaxLifetime, "DB_CONN_MAX_LIFETIME")
	setDuration(&c.Database.ConnMaxIdleTime, "DB_CONN_MAX_IDLE_TIME")

	setString(&c.Auth.JWTSecret, "JWT_SECRET")

	setString(&c.LLM.Provider, "DEFAULT_LLM")
	setString(&c.LLM.Model, "AI_MODEL")
	setString(&c.LLM.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.LLM.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&c.LLM.AnthropicAPIKey, "ANTHROPIC_API_KEY")

	setInt(&c.Agent.MaxIterations, "AGENT_MAX_ITERATIONS")
	setDuration(&c.Agent.LLMTimeout, "AGENT_LLM_TIMEOUT")
	setInt(&c.Agent.HistoryLimit, "HISTORY_LIMIT")

	setString(&c.Events.Backend, "EVENTS_BACKEND")
	setString(&c.Events.NATSURL, "NATS_URL")
	setString(&c.Events.NATSStream, "NATS_STREAM")
	setString(&c.Events.NATSCAFile, "NATS_CA_FILE")
	setString(&c.Events.NATSCertFile, "NATS_CERT_FILE")
	setString(&c.Events.NATSKeyFile, "NATS_KEY_FILE")
	setString(&c.Events.NATSToken, "NATS_TOKEN")
	setString(&c.Events.RedisAddr, "REDIS_ADDR")
	setString(&c.Events.RedisPassword, "REDIS_PASSWORD")
	setInt(&c.Events.RedisDB, "REDIS_DB")
	setString(&c.Events.RedisStream, "REDIS_STREAM")
	setInt64(&c.Events.RedisMaxLen, "REDIS_STREAM_MAX_LEN")
	setString(&c.Events.RabbitMQURL, "RABBITMQ_URL")
	setString(&c.Events.RabbitMQQueue, "RABBITMQ_QUEUE")

	setInt(&c.RateLimit.Requests, "RATE_LIMIT_REQUESTS")
	setDuration(&c.RateLimit.Window, "RATE_LIMIT_WINDOW")

	setString(&c.Logging.Level, "LOG_LEVEL")
	if os.Getenv("ENV") == "development" {
		c.Logging.Development = true
	}

	setBool(&c.Tracing.Enabled, "TRACING_ENABLED")
	setString(&c.Tracing.Endpoint, "TRACING_ENDPOINT")
}

// TurnBudget is the longest a single chat turn may spend waiting on the
// model, plus a margin for tools and persistence.
func (c *Config) TurnBudget() time.Duration {
	return time.Duration(c.Agent.MaxIterations)*c.Agent.LLMTimeout + writeMargin
}

// fitWriteTimeout raises a finite write timeout so a response is never cut
// off before the slowest permitted chat turn can finish.
func (c *Config) fitWriteTimeout() {
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout < c.TurnBudget() {
		c.Server.WriteTimeout = c.TurnBudget()
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("unsupported DEFAULT_LLM %q", c.LLM.Provider))
	}
	switch c.Events.Backend {
	case "", "none", "nats", "redis", "rabbitmq":
	default:
		errs = append(errs, fmt.Errorf("unsupported EVENTS_BACKEND %q", c.Events.Backend))
	}
	if c.Agent.MaxIterations <= 0 {
		errs = append(errs, errors.New("AGENT_MAX_ITERATIONS must be positive"))
	}
	if c.Agent.HistoryLimit <= 0 {
		errs = append(errs, errors.New("HISTORY_LIMIT must be positive"))
	}
	return errors.Join(errs...)
}

// UsesDevSecret reports whether the built-in JWT secret is in effect.
func (c *Config) UsesDevSecret() bool {
	return c.Auth.JWTSecret == devSecret
}

// APIKey returns the key for the selected provider.
func (c *Config) APIKey() string {
	if c.LLM.Provider == "anthropic" {
		return c.LLM.AnthropicAPIKey
	}
	return c.LLM.OpenAIAPIKey
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setList(dst *[]string, key string) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			*dst = i
		}
	}
}

func setInt64(dst *int64, key string) {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			*dst = i
		}
	}
}

func setBool(dst *bool, key string) {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			*dst = d
		}
	}
}
