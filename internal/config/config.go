// ABOUTME: Configuration loading and parsing for chathub
// ABOUTME: Supports YAML or TOML files, .env loading, environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left empty in the file.
const (
	DefaultHost              = "https://www.bing.com"
	DefaultSocketURL         = "wss://sydney.bing.com/sydney/ChatHub"
	DefaultBootstrapTimeout  = 30 * time.Second
	DefaultTurnTimeout       = 120 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultKeepaliveInterval = 15 * time.Second
	DefaultCacheBackend      = "memory"
	DefaultCacheNamespace    = "bing"
	DefaultMetricsAddr       = "127.0.0.1:9464"
	DefaultMetricsPath       = "/metrics"
)

// Config represents the complete chathub configuration. It is built once by
// Load and handed by value or pointer to constructors; nothing mutates it
// afterwards.
type Config struct {
	Service ServiceConfig `yaml:"service" toml:"service"`
	Chat    ChatConfig    `yaml:"chat" toml:"chat"`
	Cache   CacheConfig   `yaml:"cache" toml:"cache"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// ServiceConfig holds the remote endpoints and identity credential
type ServiceConfig struct {
	Host      string `yaml:"host" toml:"host"`
	SocketURL string `yaml:"socket_url" toml:"socket_url"`
	UserToken string `yaml:"user_token" toml:"user_token"`
	Cookies   string `yaml:"cookies" toml:"cookies"` // raw cookie header, overrides user_token
	Proxy     string `yaml:"proxy" toml:"proxy"`

	BootstrapTimeout    time.Duration `yaml:"-" toml:"-"`
	BootstrapTimeoutRaw string        `yaml:"bootstrap_timeout" toml:"bootstrap_timeout"`
}

// HasCredential reports whether a user token or cookie string is configured.
func (s ServiceConfig) HasCredential() bool {
	return s.UserToken != "" || s.Cookies != ""
}

// ChatConfig holds per-turn timing and envelope composition settings
type ChatConfig struct {
	Timeout           time.Duration `yaml:"-" toml:"-"`
	HandshakeTimeout  time.Duration `yaml:"-" toml:"-"`
	KeepaliveInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TimeoutRaw           string `yaml:"timeout" toml:"timeout"`
	HandshakeTimeoutRaw  string `yaml:"handshake_timeout" toml:"handshake_timeout"`
	KeepaliveIntervalRaw string `yaml:"keepalive_interval" toml:"keepalive_interval"`

	Persona         string   `yaml:"persona,omitempty" toml:"persona,omitempty"`
	Greeting        string   `yaml:"greeting,omitempty" toml:"greeting,omitempty"`
	UserLabel       string   `yaml:"user_label,omitempty" toml:"user_label,omitempty"`
	BotLabel        string   `yaml:"bot_label,omitempty" toml:"bot_label,omitempty"`
	OptionsSets     []string `yaml:"options_sets,omitempty" toml:"options_sets,omitempty"`
	SliceIDs        []string `yaml:"slice_ids,omitempty" toml:"slice_ids,omitempty"`
	ConversationKey string   `yaml:"conversation_key,omitempty" toml:"conversation_key,omitempty"`
}

// CacheConfig selects and tunes the conversation cache backend
type CacheConfig struct {
	Backend    string `yaml:"backend" toml:"backend"`
	Path       string `yaml:"path" toml:"path"`
	Namespace  string `yaml:"namespace" toml:"namespace"`
	MaxEntries int    `yaml:"max_entries" toml:"max_entries"`

	TTL    time.Duration `yaml:"-" toml:"-"`
	TTLRaw string        `yaml:"ttl" toml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	// parseDurations cannot fail on the default strings
	_ = parseDurations(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file next to the config is loaded first without overriding variables
// already set. Environment variables in the format ${VAR_NAME} are expanded.
// Files ending in .toml are parsed as TOML, anything else as YAML.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes config data in the format named by ext (".toml", ".yaml", ".yml").
func Parse(data []byte, ext string) (*Config, error) {
	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyDefaults(&cfg)

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Service.Host == "" {
		cfg.Service.Host = DefaultHost
	}
	if cfg.Service.SocketURL == "" {
		cfg.Service.SocketURL = DefaultSocketURL
	}
	if cfg.Service.BootstrapTimeoutRaw == "" {
		cfg.Service.BootstrapTimeoutRaw = DefaultBootstrapTimeout.String()
	}
	if cfg.Chat.TimeoutRaw == "" {
		cfg.Chat.TimeoutRaw = DefaultTurnTimeout.String()
	}
	if cfg.Chat.HandshakeTimeoutRaw == "" {
		cfg.Chat.HandshakeTimeoutRaw = DefaultHandshakeTimeout.String()
	}
	if cfg.Chat.KeepaliveIntervalRaw == "" {
		cfg.Chat.KeepaliveIntervalRaw = DefaultKeepaliveInterval.String()
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = DefaultCacheBackend
	}
	if cfg.Cache.Namespace == "" {
		cfg.Cache.Namespace = DefaultCacheNamespace
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Service.Host, "http://") && !strings.HasPrefix(c.Service.Host, "https://") {
		return fmt.Errorf("service.host must be an http(s) URL, got %q", c.Service.Host)
	}
	if !strings.HasPrefix(c.Service.SocketURL, "ws://") && !strings.HasPrefix(c.Service.SocketURL, "wss://") {
		return fmt.Errorf("service.socket_url must be a ws(s) URL, got %q", c.Service.SocketURL)
	}

	switch c.Cache.Backend {
	case "memory":
	case "sqlite", "bolt", "pebble":
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for the %s backend", c.Cache.Backend)
		}
	default:
		return fmt.Errorf("cache.backend %q is not one of memory, sqlite, bolt, pebble", c.Cache.Backend)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	if c.Chat.Timeout <= 0 {
		return fmt.Errorf("chat.timeout must be positive")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"service.bootstrap_timeout", cfg.Service.BootstrapTimeoutRaw, &cfg.Service.BootstrapTimeout},
		{"chat.timeout", cfg.Chat.TimeoutRaw, &cfg.Chat.Timeout},
		{"chat.handshake_timeout", cfg.Chat.HandshakeTimeoutRaw, &cfg.Chat.HandshakeTimeout},
		{"chat.keepalive_interval", cfg.Chat.KeepaliveIntervalRaw, &cfg.Chat.KeepaliveInterval},
		{"cache.ttl", cfg.Cache.TTLRaw, &cfg.Cache.TTL},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// Marshal renders cfg in the format named by ext, for writing starter files.
func Marshal(cfg *Config, ext string) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".toml":
		var b strings.Builder
		if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
			return nil, fmt.Errorf("encoding config: %w", err)
		}
		return []byte(b.String()), nil
	default:
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("encoding config: %w", err)
		}
		return data, nil
	}
}
