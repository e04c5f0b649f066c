package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Runtime.Adapter != "shell" || cfg.Runtime.Strict {
		t.Errorf("expected non-strict shell runtime, got %+v", cfg.Runtime)
	}
	if cfg.Runtime.Timeout != 120*time.Second {
		t.Errorf("expected timeout 120s, got %v", cfg.Runtime.Timeout)
	}
	if cfg.Orchestrator.MaxIterations != 100 {
		t.Errorf("expected max_iterations 100, got %d", cfg.Orchestrator.MaxIterations)
	}
	if cfg.NATS.URL != "" || cfg.Postgres.DSN != "" || cfg.Telemetry.Endpoint != "" {
		t.Error("optional integrations must be disabled by default")
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "sddflow.yaml")

	content := `
server:
  port: "9090"
runtime:
  adapter: claude_code
  timeout: 30s
orchestrator:
  mode: supervised
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Runtime.Adapter != "claude_code" || cfg.Runtime.Timeout != 30*time.Second {
		t.Errorf("unexpected runtime %+v", cfg.Runtime)
	}
	if cfg.Orchestrator.Mode != "supervised" {
		t.Errorf("expected supervised, got %s", cfg.Orchestrator.Mode)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.Orchestrator.MaxIterations != 100 {
		t.Errorf("expected default max_iterations, got %d", cfg.Orchestrator.MaxIterations)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestLoadYAMLMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("runtime: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("SDD_RUNTIME_ADAPTER", "claude")
	t.Setenv("SDD_STRICT_COMMANDS", "1")
	t.Setenv("SDD_TASK_TIMEOUT", "45")
	t.Setenv("SDDFLOW_MAX_ITERATIONS", "7")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("SDDFLOW_LOG_LEVEL", "warn")
	t.Setenv("SDDFLOW_BREAKER_TIMEOUT", "1m")

	loadEnv(&cfg)

	if cfg.Runtime.Adapter != "claude" || !cfg.Runtime.Strict {
		t.Errorf("unexpected runtime %+v", cfg.Runtime)
	}
	if cfg.Runtime.Timeout != 45*time.Second {
		t.Errorf("expected 45s timeout, got %v", cfg.Runtime.Timeout)
	}
	if cfg.Orchestrator.MaxIterations != 7 {
		t.Errorf("expected 7 iterations, got %d", cfg.Orchestrator.MaxIterations)
	}
	if cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("unexpected nats url %s", cfg.NATS.URL)
	}
	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("unexpected dsn %s", cfg.Postgres.DSN)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Breaker.Timeout != time.Minute {
		t.Errorf("expected breaker timeout 1m, got %v", cfg.Breaker.Timeout)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "sddflow.yaml")
	if err := os.WriteFile(yamlPath, []byte("runtime:\n  adapter: claude_code\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SDD_RUNTIME_ADAPTER", "shell")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Runtime.Adapter != "shell" {
		t.Errorf("env should win over YAML, got %s", cfg.Runtime.Adapter)
	}
}

func TestEnvInvalidValuesIgnored(t *testing.T) {
	cfg := Defaults()
	t.Setenv("SDD_STRICT_COMMANDS", "maybe")
	t.Setenv("SDD_TASK_TIMEOUT", "soon")
	t.Setenv("SDDFLOW_MAX_ITERATIONS", "many")

	loadEnv(&cfg)

	if cfg.Runtime.Strict || cfg.Runtime.Timeout != 120*time.Second || cfg.Orchestrator.MaxIterations != 100 {
		t.Errorf("invalid env values must be ignored, got %+v %+v", cfg.Runtime, cfg.Orchestrator)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero iterations", func(c *Config) { c.Orchestrator.MaxIterations = 0 }},
		{"unknown mode", func(c *Config) { c.Orchestrator.Mode = "yolo" }},
		{"sub-second timeout", func(c *Config) { c.Runtime.Timeout = 10 * time.Millisecond }},
		{"postgres without conns", func(c *Config) { c.Postgres.DSN = "postgres://x"; c.Postgres.MaxConns = 0 }},
		{"breaker without failures", func(c *Config) { c.Breaker.MaxFailures = 0 }},
		{"sample ratio above one", func(c *Config) { c.Telemetry.SampleRatio = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			if err := validate(&cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
