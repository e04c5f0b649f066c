package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "sddflow.yaml"

var validModes = map[string]bool{"autonomous": true, "supervised": true, "manual": true}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Logging.Level, "SDDFLOW_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SDDFLOW_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "SDDFLOW_LOG_ASYNC")

	setString(&cfg.Server.Port, "SDDFLOW_PORT")
	setString(&cfg.Server.CORSOrigin, "SDDFLOW_CORS_ORIGIN")
	setString(&cfg.Server.FeaturesRoot, "SDDFLOW_FEATURES_ROOT")

	// Runtime selection keeps the historical variable names.
	setString(&cfg.Runtime.Adapter, "SDD_RUNTIME_ADAPTER")
	setBool(&cfg.Runtime.Strict, "SDD_STRICT_COMMANDS")
	setSeconds(&cfg.Runtime.Timeout, "SDD_TASK_TIMEOUT")

	setInt(&cfg.Orchestrator.MaxIterations, "SDDFLOW_MAX_ITERATIONS")
	setString(&cfg.Orchestrator.Mode, "SDDFLOW_MODE")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "SDDFLOW_NATS_STREAM")
	setDuration(&cfg.NATS.RequestTimeout, "SDDFLOW_NATS_REQUEST_TIMEOUT")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SDDFLOW_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "SDDFLOW_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SDDFLOW_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "SDDFLOW_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "SDDFLOW_PG_HEALTH_CHECK")

	setString(&cfg.Telemetry.Endpoint, "SDDFLOW_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "SDDFLOW_OTLP_INSECURE")
	setFloat64(&cfg.Telemetry.SampleRatio, "SDDFLOW_OTLP_SAMPLE_RATIO")

	setInt64(&cfg.Cache.L1MaxSizeMB, "SDDFLOW_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "SDDFLOW_CACHE_TTL")

	setInt(&cfg.Breaker.MaxFailures, "SDDFLOW_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SDDFLOW_BREAKER_TIMEOUT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Orchestrator.MaxIterations < 1 {
		return errors.New("orchestrator.max_iterations must be >= 1")
	}
	if !validModes[cfg.Orchestrator.Mode] {
		return fmt.Errorf("orchestrator.mode %q is not one of autonomous, supervised, manual", cfg.Orchestrator.Mode)
	}
	if cfg.Runtime.Timeout < time.Second {
		return errors.New("runtime.timeout must be >= 1s")
	}
	if cfg.Postgres.DSN != "" && cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return errors.New("telemetry.sample_ratio must be between 0 and 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// setSeconds accepts a plain number of seconds or a Go duration.
func setSeconds(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = time.Duration(n) * time.Second
		return
	}
	setDuration(dst, key)
}
