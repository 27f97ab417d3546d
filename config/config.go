// Package config loads the server configuration from a YAML file, an
// optional .env file and environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"

	"github.com/DimaCrafter/photonyx/core/cors"
	"github.com/DimaCrafter/photonyx/core/logging"
)

// EnvPrefix prefixes every environment override, e.g. PHOTONYX_SERVER_HOST.
// Leaf fields carry no envconfig tag so that unprefixed names such as HOST
// are never consulted.
const EnvPrefix = "PHOTONYX"

// DefaultFile is the config file read when none is given.
const DefaultFile = "config.yaml"

// Built-in database providers selectable with database.provider.
const (
	ProviderModule  = ""
	ProviderPebble  = "pebble"
	ProviderMongoDB = "mongodb"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	CORS      CORSConfig      `yaml:"cors" envconfig:"CORS"`
	Modules   ModulesConfig   `yaml:"modules" envconfig:"MODULES"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Logging   logging.Config  `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig configures the listener and the worker pool.
type ServerConfig struct {
	Host        string `yaml:"host" split_words:"true"`
	Port        int    `yaml:"port" split_words:"true"`
	Workers     int    `yaml:"workers" split_words:"true"`
	MaxBodySize int    `yaml:"max_body_size" split_words:"true"` // bytes
	// MaxConnections caps open sockets, 0 for no cap.
	MaxConnections int `yaml:"max_connections" split_words:"true"`
	// MetricsAddress serves /metrics on a separate listener when set.
	MetricsAddress  string `yaml:"metrics_address" split_words:"true"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" split_words:"true"` // seconds
}

// CORSConfig is the cross-origin policy. Lists are joined with commas on
// the wire.
type CORSConfig struct {
	Origin  string   `yaml:"origin" split_words:"true"`
	Methods []string `yaml:"methods" split_words:"true"`
	Headers []string `yaml:"headers" split_words:"true"`
	TTL     int      `yaml:"ttl" split_words:"true"` // seconds
}

type ModulesConfig struct {
	Directory string `yaml:"directory" split_words:"true"`
}

// DatabaseConfig names the registry key modules' connections are stored
// under and the opaque options passed to the provider's connect hook.
type DatabaseConfig struct {
	Key      string         `yaml:"key" split_words:"true"`
	Provider string         `yaml:"provider" split_words:"true"`
	Options  map[string]any `yaml:"options" ignored:"true"`
}

// RateLimitConfig enables per-peer rate limiting when RPS is positive.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" split_words:"true"`
	Burst int     `yaml:"burst" split_words:"true"`
}

// Load loads configuration from file and environment variables. A missing
// file or .env is not an error. The bare PORT variable overrides the port
// last.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if port := os.Getenv("PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Server.Port = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with the documented defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8081,
			Workers:         32,
			MaxBodySize:     10 << 20,
			ShutdownTimeout: 10,
		},
		CORS: CORSConfig{
			Methods: []string{"GET", "POST"},
			Headers: []string{"content-type", "session"},
			TTL:     86400,
		},
		Modules: ModulesConfig{
			Directory: "modules",
		},
		Database: DatabaseConfig{
			Key: "primary",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Server.Workers)
	}
	if c.Server.MaxBodySize < 0 {
		return fmt.Errorf("max_body_size must not be negative")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if c.Database.Key == "" {
		return fmt.Errorf("database key is required")
	}
	switch c.Database.Provider {
	case ProviderModule, ProviderPebble, ProviderMongoDB:
	default:
		return fmt.Errorf("unknown database provider %q", c.Database.Provider)
	}
	if !logging.Valid(c.Logging.Level) {
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	return nil
}

// Addr is the host:port the server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Policy converts the CORS section into the header values the server sends.
func (c *Config) Policy() cors.Policy {
	return cors.Policy{
		Origin:  c.CORS.Origin,
		Methods: strings.Join(c.CORS.Methods, ","),
		Headers: strings.Join(c.CORS.Headers, ","),
		MaxAge:  strconv.Itoa(c.CORS.TTL),
	}
}

// DatabaseOptions converts the opaque options subtree for a provider.
func (c *Config) DatabaseOptions() (*structpb.Struct, error) {
	options, err := structpb.NewStruct(normalize(c.Database.Options).(map[string]any))
	if err != nil {
		return nil, fmt.Errorf("database options: %w", err)
	}
	return options, nil
}

// normalize turns YAML-decoded trees into values structpb accepts.
func normalize(v any) any {
	switch v := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			out[key] = normalizeValue(value)
		}
		return out
	default:
		return map[string]any{}
	}
}

func normalizeValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return normalize(v)
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			out[fmt.Sprint(key)] = normalizeValue(value)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}
