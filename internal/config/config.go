// Package config loads cohortsim configuration.
// Order: defaults -> YAML file -> .env -> environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lazypower/cohortsim/internal/engine"
)

// Config holds all cohortsim configuration.
type Config struct {
	Server     ServerConfig   `json:"server" yaml:"server"`
	Database   DatabaseConfig `json:"database" yaml:"database"`
	Sink       SinkConfig     `json:"sink" yaml:"sink"`
	Logging    LoggingConfig  `json:"logging" yaml:"logging"`
	Simulation engine.Params  `json:"simulation" yaml:"simulation"`
}

type ServerConfig struct {
	Bind string `json:"bind" yaml:"bind"`
	Port int    `json:"port" yaml:"port"`
}

type DatabaseConfig struct {
	// Path to the run database. Empty resolves to store.DefaultDBPath().
	Path string `json:"path" yaml:"path"`
}

// SinkConfig points at the external REST backend that receives runs.
type SinkConfig struct {
	URL       string        `json:"url" yaml:"url"`
	BatchSize int           `json:"batch_size" yaml:"batch_size"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
}

type LoggingConfig struct {
	// Level is "info" (default), "debug" or "trace".
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Sink: SinkConfig{
			BatchSize: 500,
			Timeout:   5 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Simulation: engine.DefaultParams(),
	}
}

// DefaultPath returns ~/.cohortsim/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".cohortsim", "config.yaml"), nil
}

// Load reads path (or the default location when path is empty), then
// applies .env and environment overrides. A missing default file is not an
// error; a missing explicit file is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err == nil {
			path = p
		}
	}

	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		switch {
		case err == nil:
			cfg = fileCfg
		case !explicit && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile parses a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Maps decode by merging, so clear them and refill what the file omits.
	cfg := Default()
	cfg.Simulation.PersonaMix = nil
	cfg.Simulation.Personas = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Simulation.FillDefaults()
	cfg.Sink.URL = expandEnvVars(cfg.Sink.URL)
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is fine.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COHORTSIM_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("COHORTSIM_SINK_URL"); v != "" {
		cfg.Sink.URL = v
	}
	if v := os.Getenv("COHORTSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("COHORTSIM_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
}

// Validate checks the ambient settings and the simulation parameters.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [0, 65535], got %d", c.Server.Port)
	}
	if c.Sink.BatchSize < 1 {
		return fmt.Errorf("sink.batch_size must be >= 1, got %d", c.Sink.BatchSize)
	}
	if c.Sink.Timeout < 0 {
		return fmt.Errorf("sink.timeout must be non-negative, got %v", c.Sink.Timeout)
	}
	if c.Sink.URL != "" && !strings.HasPrefix(c.Sink.URL, "http://") && !strings.HasPrefix(c.Sink.URL, "https://") {
		return fmt.Errorf("sink.url must be an http(s) URL, got %q", c.Sink.URL)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// WriteSample writes the default configuration as YAML to path. It refuses
// to overwrite an existing file unless force is set.
func WriteSample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal sample config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	header := "# cohortsim configuration\n# Environment overrides: COHORTSIM_DB, COHORTSIM_SINK_URL, COHORTSIM_LOG_LEVEL, COHORTSIM_PORT\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
