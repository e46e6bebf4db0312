package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/spachava753/incidentbench/internal/models"
)

// DefaultRunConfig returns a RunConfig with default values.
func DefaultRunConfig() models.RunConfig {
	return models.RunConfig{
		TrialsPerCondition: 116,
		Seed:               42,
		ResultsDir:         "results",
		RateLimitPerMinute: 10,
		Readiness: models.ReadinessConfig{
			MaxAttempts: 30,
			Interval:    2 * time.Second,
			Timeout:     30 * time.Second,
		},
		CircuitBreaker: models.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     60 * time.Second,
		},
		Baseline: models.BaselineConfig{
			T2U:           models.Distribution{MeanSec: 120, StdSec: 6.5},
			ProgressEvery: 20,
		},
		SingleAgent: models.ServiceConfig{
			URL:           "http://copilot:8000",
			Timeout:       180 * time.Second,
			MaxAttempts:   3,
			Backoff:       10 * time.Second,
			FallbackT2U:   models.Distribution{MeanSec: 79, StdSec: 5.0},
			ProgressEvery: 10,
		},
		MultiAgent: models.ServiceConfig{
			URL:           "http://multiagent:8000",
			Timeout:       240 * time.Second,
			MaxAttempts:   3,
			Backoff:       15 * time.Second,
			FallbackT2U:   models.Distribution{MeanSec: 50, StdSec: 3.5},
			ProgressEvery: 10,
		},
	}
}

// LoadRunConfig loads and parses a run config file. An empty path yields
// the defaults.
func LoadRunConfig(path string) (models.RunConfig, error) {
	cfg := DefaultRunConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading run config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing run config: %w", err)
	}

	// Apply defaults for values explicitly zeroed in the file
	def := DefaultRunConfig()
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = def.ResultsDir
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = def.RateLimitPerMinute
	}
	if cfg.Baseline.ProgressEvery == 0 {
		cfg.Baseline.ProgressEvery = def.Baseline.ProgressEvery
	}
	if cfg.SingleAgent.ProgressEvery == 0 {
		cfg.SingleAgent.ProgressEvery = def.SingleAgent.ProgressEvery
	}
	if cfg.MultiAgent.ProgressEvery == 0 {
		cfg.MultiAgent.ProgressEvery = def.MultiAgent.ProgressEvery
	}

	return cfg, nil
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyRunEnv overrides cfg from the environment variables understood by
// the evaluator container.
func ApplyRunEnv(cfg *models.RunConfig, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup("COPILOT_URL"); ok && v != "" {
		cfg.SingleAgent.URL = v
	}
	if v, ok := lookup("MULTIAGENT_URL"); ok && v != "" {
		cfg.MultiAgent.URL = v
	}
	if v, ok := lookup("RESULTS_DIR"); ok && v != "" {
		cfg.ResultsDir = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"TRIALS_PER_CONDITION", &cfg.TrialsPerCondition},
		{"RATE_LIMIT_CALLS_PER_MIN", &cfg.RateLimitPerMinute},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s=%q: %w", e.key, v, err)
		}
		*e.dst = n
	}

	if v, ok := lookup("RANDOM_SEED"); ok && v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing RANDOM_SEED=%q: %w", v, err)
		}
		cfg.Seed = seed
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRunConfig reports every invalid field of cfg.
func ValidateRunConfig(cfg models.RunConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid run config: %w", err)
	}
	return nil
}
