// Package config loads zkcp-authd settings from defaults, an optional YAML
// file and ZKCP_* environment variables, in that order of precedence.
// Command-line flags are applied last by the binary.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/allsmog/zkcp-go/pkg/crypto/group"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by ApplyEnv
const (
	EnvListenAddr   = "ZKCP_LISTEN_ADDR"
	EnvGroup        = "ZKCP_GROUP"
	EnvLogLevel     = "ZKCP_LOG_LEVEL"
	EnvLogFormat    = "ZKCP_LOG_FORMAT"
	EnvChallengeTTL = "ZKCP_CHALLENGE_TTL"
	EnvRateLimit    = "ZKCP_RATE_LIMIT"
)

// ErrInvalid indicates a configuration that cannot be used
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete server configuration
type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	Group           GroupConfig   `yaml:"group"`
	ChallengeTTL    time.Duration `yaml:"challenge_ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	RateLimit       int           `yaml:"rate_limit"` // Requests per minute per client
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	CORS            bool          `yaml:"cors"`
	Log             LogConfig     `yaml:"log"`
}

// GroupConfig selects the protocol parameters: either a preset name or
// explicit values. Explicit values win when Modulus is set.
type GroupConfig struct {
	Preset  string `yaml:"preset"`
	G       string `yaml:"g"`
	H       string `yaml:"h"`
	Modulus string `yaml:"modulus"`
	Order   string `yaml:"order"`
}

// LogConfig controls the logger
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		ListenAddr:      "127.0.0.1:50051",
		Group:           GroupConfig{Preset: "modp2048"},
		ChallengeTTL:    2 * time.Minute,
		JanitorInterval: time.Minute,
		RateLimit:       120,
		RequestTimeout:  30 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if path is
// not empty) and then with the process environment
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.Merge(data); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Merge overlays the YAML document in data. Keys absent from the document
// keep their current values.
func (c *Config) Merge(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// ApplyEnv overlays the ZKCP_* variables found through getenv
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvListenAddr); v != "" {
		c.ListenAddr = v
	}
	if v := getenv(EnvGroup); v != "" {
		c.Group = GroupConfig{Preset: v}
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	if v := getenv(EnvChallengeTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, EnvChallengeTTL, err)
		}
		c.ChallengeTTL = d
	}
	if v := getenv(EnvRateLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, EnvRateLimit, err)
		}
		c.RateLimit = n
	}
	return nil
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen address is empty", ErrInvalid)
	}
	if c.ChallengeTTL <= 0 {
		return fmt.Errorf("%w: challenge TTL must be positive", ErrInvalid)
	}
	if c.JanitorInterval < 0 {
		return fmt.Errorf("%w: janitor interval must not be negative", ErrInvalid)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", ErrInvalid)
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalid, c.Log.Format)
	}

	if _, err := c.Params(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Params builds the protocol parameters the configuration selects
func (c *Config) Params() (*group.Params, error) {
	g := c.Group
	if g.Modulus != "" {
		return group.FromStrings("custom", g.G, g.H, g.Modulus, g.Order)
	}

	preset := g.Preset
	if preset == "" {
		preset = "modp2048"
	}
	return group.Preset(preset)
}
