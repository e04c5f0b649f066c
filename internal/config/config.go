// Package config provides hierarchical configuration loading for sddflow.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all process configuration of sddflow.
type Config struct {
	Logging      Logging      `yaml:"logging"`
	Server       Server       `yaml:"server"`
	Runtime      Runtime      `yaml:"runtime"`
	Orchestrator Orchestrator `yaml:"orchestrator"`
	NATS         NATS         `yaml:"nats"`
	Postgres     Postgres     `yaml:"postgres"`
	Telemetry    Telemetry    `yaml:"telemetry"`
	Cache        Cache        `yaml:"cache"`
	Breaker      Breaker      `yaml:"breaker"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Server holds the HTTP server configuration of "sddflow serve".
type Server struct {
	Port         string `yaml:"port"`
	CORSOrigin   string `yaml:"cors_origin"`
	FeaturesRoot string `yaml:"features_root"`
}

// Runtime holds the process-wide runtime adapter defaults. A feature's
// context and the SDD_* environment variables override them.
type Runtime struct {
	Adapter string        `yaml:"adapter"` // "shell" | "claude_code" | "nats" (default: "shell")
	Strict  bool          `yaml:"strict"`  // run sdd-* commands instead of simulating them
	Timeout time.Duration `yaml:"timeout"` // per-command wall clock limit (default: 120s)
}

// Orchestrator holds orchestration loop configuration.
type Orchestrator struct {
	MaxIterations int    `yaml:"max_iterations"` // hard cap on loop rounds (default: 100)
	Mode          string `yaml:"mode"`           // "autonomous" | "supervised" | "manual"
}

// NATS holds NATS JetStream configuration. An empty URL disables events
// and the nats runtime adapter.
type NATS struct {
	URL            string        `yaml:"url"`
	Stream         string        `yaml:"stream"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Postgres holds PostgreSQL connection configuration for the postgres human
// queue backend. An empty DSN disables it.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// Telemetry holds OpenTelemetry exporter configuration. An empty endpoint
// keeps the no-op providers.
type Telemetry struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Cache holds the in-process artifact cache configuration.
type Cache struct {
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	TTL         time.Duration `yaml:"ttl"`
}

// Breaker holds circuit breaker configuration for outbound event publishing.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Defaults returns a Config with sensible default values for local use.
func Defaults() Config {
	return Config{
		Logging: Logging{
			Level:   "info",
			Service: "sddflow",
		},
		Server: Server{
			Port:         "8080",
			CORSOrigin:   "http://localhost:3000",
			FeaturesRoot: ".",
		},
		Runtime: Runtime{
			Adapter: "shell",
			Timeout: 120 * time.Second,
		},
		Orchestrator: Orchestrator{
			MaxIterations: 100,
			Mode:          "autonomous",
		},
		NATS: NATS{
			Stream:         "SDDFLOW",
			RequestTimeout: 130 * time.Second,
		},
		Postgres: Postgres{
			MaxConns:        5,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		Telemetry: Telemetry{
			SampleRatio: 1,
		},
		Cache: Cache{
			L1MaxSizeMB: 32,
			TTL:         5 * time.Minute,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
	}
}
