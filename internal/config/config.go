// Package config loads cranesched configuration with priority
// env > file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/elektrokombinacija/crane-mcts/internal/algo"
	"github.com/elektrokombinacija/crane-mcts/internal/logging"
	"github.com/elektrokombinacija/crane-mcts/internal/prep"
	"github.com/elektrokombinacija/crane-mcts/internal/telemetry"
)

// Config is the complete cranesched configuration.
type Config struct {
	Search  algo.MCTSConfig         `yaml:"search"`
	Rules   prep.Options            `yaml:"rules"`
	Logging logging.Config          `yaml:"logging"`
	Metrics MetricsConfig           `yaml:"metrics"`
	Tracing telemetry.TracingConfig `yaml:"tracing"`
	Bench   BenchConfig             `yaml:"bench"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// BenchConfig configures batch experiments.
type BenchConfig struct {
	Workers int      `yaml:"workers"`
	Solvers []string `yaml:"solvers"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Search:  algo.DefaultMCTSConfig(),
		Rules:   prep.DefaultOptions(),
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{Addr: ":9090"},
		Tracing: telemetry.DefaultTracingConfig(),
		Bench: BenchConfig{
			Workers: 4,
			Solvers: []string{"earliest-ready", "deadline-aware", "mcts"},
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides fields from CRANESCHED_* variables.
func applyEnv(cfg *Config) error {
	var errs []error
	if v := os.Getenv("CRANESCHED_SIMULATIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Search.Simulations = i
		} else {
			errs = append(errs, fmt.Errorf("CRANESCHED_SIMULATIONS: %w", err))
		}
	}
	if v := os.Getenv("CRANESCHED_EXPLORATION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.Exploration = f
		} else {
			errs = append(errs, fmt.Errorf("CRANESCHED_EXPLORATION: %w", err))
		}
	}
	if v := os.Getenv("CRANESCHED_SEED"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Search.Seed = i
		} else {
			errs = append(errs, fmt.Errorf("CRANESCHED_SEED: %w", err))
		}
	}
	if v := os.Getenv("CRANESCHED_FINAL_ACTION"); v != "" {
		cfg.Search.FinalAction = algo.FinalAction(v)
	}
	if v := os.Getenv("CRANESCHED_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CRANESCHED_TRACING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tracing.Enabled = b
		} else {
			errs = append(errs, fmt.Errorf("CRANESCHED_TRACING: %w", err))
		}
	}
	if v := os.Getenv("CRANESCHED_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Bench.Workers = i
		} else {
			errs = append(errs, fmt.Errorf("CRANESCHED_WORKERS: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks every section.
func (c Config) Validate() error {
	var errs []error
	if err := c.Search.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("search: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics: addr is required when enabled"))
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	if c.Bench.Workers < 1 {
		errs = append(errs, fmt.Errorf("bench: workers must be >= 1, got %d", c.Bench.Workers))
	}
	return errors.Join(errs...)
}
