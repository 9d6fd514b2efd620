package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lazypower/cohortsim/internal/model"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.ListenAddr() != "127.0.0.1:37780" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9000
sink:
  url: http://localhost:4000
  timeout: 2s
logging:
  level: debug
simulation:
  total_agents: 250
  horizon_days: 20
  persona_mix:
    engaged: 0.5
    casual: 0.5
  insight:
    enabled: false
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Server.Bind != "127.0.0.1" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Sink.URL != "http://localhost:4000" || cfg.Sink.Timeout != 2*time.Second || cfg.Sink.BatchSize != 500 {
		t.Errorf("sink = %+v", cfg.Sink)
	}
	sim := cfg.Simulation
	if sim.TotalAgents != 250 || sim.HorizonDays != 20 || sim.Insight.Enabled {
		t.Errorf("simulation = %+v", sim)
	}
	if len(sim.PersonaMix) != 2 {
		t.Errorf("persona mix merged with defaults: %v", sim.PersonaMix)
	}
	if len(sim.Personas) != len(model.Personas) {
		t.Errorf("persona profiles = %d, want defaults filled in", len(sim.Personas))
	}
	if sim.Insight.SpacingDays != 3 {
		t.Errorf("unset insight fields should keep defaults, spacing = %d", sim.Insight.SpacingDays)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COHORTSIM_DB", "/tmp/runs.db")
	t.Setenv("COHORTSIM_SINK_URL", "http://sink:8080")
	t.Setenv("COHORTSIM_LOG_LEVEL", "trace")
	t.Setenv("COHORTSIM_PORT", "8081")

	cfg := Default()
	applyEnvOverrides(cfg)
	if cfg.Database.Path != "/tmp/runs.db" || cfg.Sink.URL != "http://sink:8080" ||
		cfg.Logging.Level != "trace" || cfg.Server.Port != 8081 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("COHORTSIM_TEST_DOTENV=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COHORTSIM_TEST_DOTENV", "")
	os.Unsetenv("COHORTSIM_TEST_DOTENV")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("COHORTSIM_TEST_DOTENV"); got != "from-file" {
		t.Errorf("env = %q, want from-file", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "absent.env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"batch size", func(c *Config) { c.Sink.BatchSize = 0 }},
		{"sink url", func(c *Config) { c.Sink.URL = "ftp://example" }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	cfg := Default()
	cfg.Simulation.HorizonDays = 0
	if err := cfg.Validate(); !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("simulation error = %v, want configuration error", err)
	}
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	if err := WriteSample(path, false); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if err := WriteSample(path, false); err == nil {
		t.Error("expected refusal to overwrite")
	}
	if err := WriteSample(path, true); err != nil {
		t.Errorf("forced overwrite: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("reload sample: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("sample config invalid: %v", err)
	}
	if cfg.Simulation.TotalAgents != Default().Simulation.TotalAgents {
		t.Errorf("sample round trip lost total_agents")
	}
}
