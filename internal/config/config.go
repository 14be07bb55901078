package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/text/language"

	"github.com/MimeLyc/contextual-meta-translator/pkg/icron"
	"github.com/MimeLyc/contextual-meta-translator/pkg/log"
)

// Config holds all application configuration.
// Values come from environment variables with sensible defaults.
//
// Environment Variables:
// Cache Configuration:
// - CACHE_BACKEND: "sqlite" (durable, falls back to memory) or "memory" (default: sqlite)
// - CACHE_DB_PATH: SQLite database file (default: /app/data/ctxmeta.db)
// - CACHE_NAMESPACE: namespace tag for cache rows (default: ctxmeta)
// - CACHE_TTL: entry time-to-live (default: 24h)
// - CACHE_SWEEP_CRON: schedule for purging expired rows (default: */30 * * * *)
//
// Translate Configuration:
// - SOURCE_LANGUAGE_DEFAULT: source language when the snapshot declares none (default: en)
// - SOURCE_LANGUAGE_DETECT: detect the source language from content when absent (default: false)
// - REQUEST_TIMEOUT: deadline applied by callers to one translate request (default: 5m)
//
// Engine Configuration:
// - ENGINE_COMMAND: external translation engine executable (default: lokit)
// - ENGINE_ARGS: space separated arguments, placeholders {config} {input} {output} {workspace}
// - ENGINE_API_KEY: credential handed to the engine process
// - ENGINE_API_KEY_ENV: environment variable name the engine reads the credential from (default: LOKIT_API_KEY)
// - WORKSPACE_ROOT: parent directory for per-invocation workspaces (default: system temp dir)
//
// System Configuration:
// - LOG_LEVEL: debug, info, warn, error (default: info)
// - HTTP_ADDR: listen address (default: :8080)
// - OTEL_ENDPOINT: OTLP/HTTP trace endpoint; tracing is off when empty
// - OTEL_ENABLED: set false to force tracing off (default: true)
type Config struct {
	Log       LogConfig
	HTTP      HTTPConfig
	Cache     CacheConfig
	Translate TranslateConfig
	Engine    EngineConfig
	Telemetry TelemetryConfig
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`
}

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// CacheConfig holds the translation cache configuration
type CacheConfig struct {
	Backend   string        `env:"CACHE_BACKEND" envDefault:"sqlite"`
	DBPath    string        `env:"CACHE_DB_PATH" envDefault:"/app/data/ctxmeta.db"`
	Namespace string        `env:"CACHE_NAMESPACE" envDefault:"ctxmeta"`
	TTL       time.Duration `env:"CACHE_TTL" envDefault:"24h"`
	SweepCron string        `env:"CACHE_SWEEP_CRON" envDefault:"*/30 * * * *"`
}

type TranslateConfig struct {
	DefaultSourceLanguage string        `env:"SOURCE_LANGUAGE_DEFAULT" envDefault:"en"`
	DetectSourceLanguage  bool          `env:"SOURCE_LANGUAGE_DETECT" envDefault:"false"`
	RequestTimeout        time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5m"`
}

// EngineConfig describes how the external translation engine is invoked
type EngineConfig struct {
	Command       string   `env:"ENGINE_COMMAND" envDefault:"lokit"`
	Args          []string `env:"ENGINE_ARGS" envSeparator:" " envDefault:"translate --config {config}"`
	APIKey        string   `env:"ENGINE_API_KEY"`
	APIKeyEnv     string   `env:"ENGINE_API_KEY_ENV" envDefault:"LOKIT_API_KEY"`
	WorkspaceRoot string   `env:"WORKSPACE_ROOT"`
}

type TelemetryConfig struct {
	Endpoint    string `env:"OTEL_ENDPOINT"`
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"true"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"contextual-meta-translator"`
}

// TracingEnabled reports whether an exporter should be installed.
func (c TelemetryConfig) TracingEnabled() bool {
	return c.Enabled && strings.TrimSpace(c.Endpoint) != ""
}

// Option is a function type for configuring Config
type Option func(*Config)

func WithCacheBackend(backend string) Option {
	return func(c *Config) {
		if strings.TrimSpace(backend) != "" {
			c.Cache.Backend = backend
		}
	}
}

func WithCacheDBPath(path string) Option {
	return func(c *Config) {
		if strings.TrimSpace(path) != "" {
			c.Cache.DBPath = path
		}
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Config) {
		if ttl > 0 {
			c.Cache.TTL = ttl
		}
	}
}

func WithEngineCommand(command string, args ...string) Option {
	return func(c *Config) {
		if strings.TrimSpace(command) == "" {
			return
		}
		c.Engine.Command = command
		if len(args) > 0 {
			c.Engine.Args = args
		}
	}
}

func WithHTTPAddr(addr string) Option {
	return func(c *Config) {
		if strings.TrimSpace(addr) != "" {
			c.HTTP.Addr = addr
		}
	}
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Info("Config: cache=%s ttl=%s engine=%s", config.Cache.Backend, config.Cache.TTL, config.Engine.Command)
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	switch c.Cache.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.Cache.DBPath) == "" {
			return fmt.Errorf("CACHE_DB_PATH is required for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", BackendSQLite, BackendMemory, c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if strings.TrimSpace(c.Cache.Namespace) == "" {
		return fmt.Errorf("CACHE_NAMESPACE is required")
	}
	if c.Cache.SweepCron != "" {
		if _, err := icron.Parse(c.Cache.SweepCron); err != nil {
			return fmt.Errorf("invalid CACHE_SWEEP_CRON: %w", err)
		}
	}
	if _, err := language.Parse(c.Translate.DefaultSourceLanguage); err != nil {
		return fmt.Errorf("invalid SOURCE_LANGUAGE_DEFAULT: %w", err)
	}
	if strings.TrimSpace(c.Engine.Command) == "" {
		return fmt.Errorf("ENGINE_COMMAND is required")
	}
	return nil
}
