// ABOUTME: Configuration loading and parsing for chat-relay
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chat-relay configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Backend   BackendConfig   `yaml:"backend"`
	Terminal  TerminalConfig  `yaml:"terminal"`
	Relay     RelayConfig     `yaml:"relay"`
	Responder ResponderConfig `yaml:"responder"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BackendConfig holds the response-generation service configuration
type BackendConfig struct {
	URL string `yaml:"url"`

	ChatTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ChatTimeoutRaw string `yaml:"chat_timeout"`
}

// TerminalConfig holds the terminal metadata API configuration
type TerminalConfig struct {
	APIURL string `yaml:"api_url"`

	CacheTTL time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	CacheTTLRaw string `yaml:"cache_ttl"`
}

// RelayConfig holds the agent reply timing configuration
type RelayConfig struct {
	TypingDelay  time.Duration `yaml:"-"`
	RespondDelay time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TypingDelayRaw  string `yaml:"typing_delay"`
	RespondDelayRaw string `yaml:"respond_delay"`
}

// ResponderConfig holds the fallback responder configuration
type ResponderConfig struct {
	// RulesPath points at a TOML rule table. Empty means the built-in rules.
	RulesPath string `yaml:"rules_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is present. It is
// also what the init subcommand writes out.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in every field a minimal config file may omit
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = ":memory:"
	}
	if c.Backend.URL == "" {
		c.Backend.URL = "http://localhost:3001"
	}
	if c.Backend.ChatTimeout == 0 {
		c.Backend.ChatTimeout = 10 * time.Second
	}
	if c.Terminal.CacheTTL == 0 {
		c.Terminal.CacheTTL = 5 * time.Minute
	}
	if c.Relay.TypingDelay == 0 {
		c.Relay.TypingDelay = 500 * time.Millisecond
	}
	if c.Relay.RespondDelay == 0 {
		c.Relay.RespondDelay = 2500 * time.Millisecond
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}

	if c.Relay.RespondDelay < c.Relay.TypingDelay {
		return fmt.Errorf("relay.respond_delay must not be shorter than relay.typing_delay")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.ChatTimeoutRaw != "" {
		cfg.Backend.ChatTimeout, err = time.ParseDuration(cfg.Backend.ChatTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing chat_timeout %q: %w", cfg.Backend.ChatTimeoutRaw, err)
		}
	}

	if cfg.Terminal.CacheTTLRaw != "" {
		cfg.Terminal.CacheTTL, err = time.ParseDuration(cfg.Terminal.CacheTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing cache_ttl %q: %w", cfg.Terminal.CacheTTLRaw, err)
		}
	}

	if cfg.Relay.TypingDelayRaw != "" {
		cfg.Relay.TypingDelay, err = time.ParseDuration(cfg.Relay.TypingDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing typing_delay %q: %w", cfg.Relay.TypingDelayRaw, err)
		}
	}

	if cfg.Relay.RespondDelayRaw != "" {
		cfg.Relay.RespondDelay, err = time.ParseDuration(cfg.Relay.RespondDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing respond_delay %q: %w", cfg.Relay.RespondDelayRaw, err)
		}
	}

	return nil
}
