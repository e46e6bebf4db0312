package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/spachava753/incidentbench/internal/config"
)

func TestLoadScenario(t *testing.T) {
	scenarioToml := `name = "db_failover"
description = "Primary database failed over"
ground_truth = "promote replica and restart api"

[telemetry]
error_rate = "12%"
affected_endpoints = ["/a", "/b"]
deployment_version = "v1.1.0"
previous_version = "v1.0.9"
`

	fsys := fstest.MapFS{
		"db.toml": &fstest.MapFile{Data: []byte(scenarioToml)},
	}

	sc, err := config.LoadScenario(fsys, "db.toml")
	if err != nil {
		t.Fatalf("LoadScenario failed: %v", err)
	}

	if sc.Name != "db_failover" {
		t.Errorf("expected name db_failover, got %s", sc.Name)
	}

	if sc.GroundTruth != "promote replica and restart api" {
		t.Errorf("unexpected ground truth %q", sc.GroundTruth)
	}

	if len(sc.Telemetry.AffectedEndpoints) != 2 {
		t.Errorf("expected 2 endpoints, got %d", len(sc.Telemetry.AffectedEndpoints))
	}

	if sc.Question == "" {
		t.Error("expected default question to be applied")
	}

	if !strings.Contains(sc.Context(), "- Affected endpoints: /a, /b") {
		t.Errorf("context missing endpoints:\n%s", sc.Context())
	}
}

func TestLoadScenarioRequiresGroundTruth(t *testing.T) {
	fsys := fstest.MapFS{
		"x.toml": &fstest.MapFile{Data: []byte(`name = "x"`)},
	}

	if _, err := config.LoadScenario(fsys, "x.toml"); err == nil {
		t.Fatal("expected error for missing ground_truth")
	}
}

func TestDefaultScenario(t *testing.T) {
	sc, err := config.DefaultScenario()
	if err != nil {
		t.Fatalf("DefaultScenario failed: %v", err)
	}

	if sc.Name != config.DefaultScenarioName {
		t.Errorf("expected %s, got %s", config.DefaultScenarioName, sc.Name)
	}

	want := "rollback auth-service deployment to v2.3.0 verify database connection pool"
	if sc.GroundTruth != want {
		t.Errorf("expected ground truth %q, got %q", want, sc.GroundTruth)
	}

	ctx := sc.Context()
	if !strings.HasPrefix(ctx, "Incident: Authentication service experiencing 500 errors after deployment\n\nTelemetry:\n") {
		t.Errorf("unexpected context header:\n%s", ctx)
	}
	if !strings.HasSuffix(ctx, "What is the root cause and what actions should be taken?") {
		t.Errorf("unexpected context trailer:\n%s", ctx)
	}
}

func TestLoadRunConfig(t *testing.T) {
	runYaml := `trials_per_condition: 5
seed: 7
results_dir: out
rate_limit_per_minute: 600
circuit_breaker:
  failure_threshold: 2
  reset_timeout: 5s
single_agent:
  url: http://localhost:9001
  backoff: 50ms
multi_agent:
  url: http://localhost:9002
  max_attempts: 4
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "run.yaml")
	if err := os.WriteFile(tmpFile, []byte(runYaml), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}

	cfg, err := config.LoadRunConfig(tmpFile)
	if err != nil {
		t.Fatalf("LoadRunConfig failed: %v", err)
	}

	if cfg.TrialsPerCondition != 5 {
		t.Errorf("expected 5 trials, got %d", cfg.TrialsPerCondition)
	}

	if cfg.Seed != 7 {
		t.Errorf("expected seed 7, got %d", cfg.Seed)
	}

	if cfg.CircuitBreaker.ResetTimeout != 5*time.Second {
		t.Errorf("expected reset timeout 5s, got %s", cfg.CircuitBreaker.ResetTimeout)
	}

	if cfg.SingleAgent.Backoff != 50*time.Millisecond {
		t.Errorf("expected backoff 50ms, got %s", cfg.SingleAgent.Backoff)
	}

	// Unset fields keep their defaults
	if cfg.SingleAgent.Timeout != 180*time.Second {
		t.Errorf("expected default C2 timeout 180s, got %s", cfg.SingleAgent.Timeout)
	}

	if cfg.MultiAgent.MaxAttempts != 4 {
		t.Errorf("expected 4 attempts, got %d", cfg.MultiAgent.MaxAttempts)
	}

	if cfg.MultiAgent.FallbackT2U.MeanSec != 50 {
		t.Errorf("expected default C3 fallback mean 50, got %f", cfg.MultiAgent.FallbackT2U.MeanSec)
	}

	if err := config.ValidateRunConfig(cfg); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestDefaultRunConfig(t *testing.T) {
	cfg := config.DefaultRunConfig()

	if cfg.TrialsPerCondition != 116 {
		t.Errorf("expected default trials 116, got %d", cfg.TrialsPerCondition)
	}

	if cfg.Seed != 42 {
		t.Errorf("expected default seed 42, got %d", cfg.Seed)
	}

	if cfg.RateLimitPerMinute != 10 {
		t.Errorf("expected default rate limit 10, got %d", cfg.RateLimitPerMinute)
	}

	if cfg.SingleAgent.Backoff != 10*time.Second || cfg.MultiAgent.Backoff != 15*time.Second {
		t.Errorf("unexpected backoffs %s / %s", cfg.SingleAgent.Backoff, cfg.MultiAgent.Backoff)
	}

	if err := config.ValidateRunConfig(cfg); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestApplyRunEnv(t *testing.T) {
	env := map[string]string{
		"COPILOT_URL":          "http://c:1",
		"TRIALS_PER_CONDITION": "3",
		"RANDOM_SEED":          "99",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := config.DefaultRunConfig()
	if err := config.ApplyRunEnv(&cfg, lookup); err != nil {
		t.Fatalf("ApplyRunEnv failed: %v", err)
	}

	if cfg.SingleAgent.URL != "http://c:1" {
		t.Errorf("expected copilot url override, got %s", cfg.SingleAgent.URL)
	}
	if cfg.MultiAgent.URL != "http://multiagent:8000" {
		t.Errorf("multiagent url should be untouched, got %s", cfg.MultiAgent.URL)
	}
	if cfg.TrialsPerCondition != 3 || cfg.Seed != 99 {
		t.Errorf("expected trials 3 seed 99, got %d %d", cfg.TrialsPerCondition, cfg.Seed)
	}

	env["RANDOM_SEED"] = "forty-two"
	if err := config.ApplyRunEnv(&cfg, lookup); err == nil {
		t.Error("expected error for non-numeric seed")
	}
}

func TestValidateRunConfigRejectsBadValues(t *testing.T) {
	cfg := config.DefaultRunConfig()
	cfg.TrialsPerCondition = 0
	cfg.SingleAgent.URL = "not a url"

	err := config.ValidateRunConfig(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "TrialsPerCondition") || !strings.Contains(err.Error(), "URL") {
		t.Errorf("expected both fields reported, got %v", err)
	}
}

func TestServiceConfigDefaults(t *testing.T) {
	cp := config.DefaultCopilotConfig()
	ma := config.DefaultMultiAgentConfig()

	if cp.MaxTokens != 200 || ma.MaxTokens != 150 {
		t.Errorf("unexpected max tokens %d / %d", cp.MaxTokens, ma.MaxTokens)
	}

	env := map[string]string{"MODEL_NAME": "llama3", "TEMPERATURE": "0.2"}
	err := config.ApplyServiceEnv(&cp, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("ApplyServiceEnv failed: %v", err)
	}
	if cp.Model != "llama3" || cp.Temperature != 0.2 {
		t.Errorf("env not applied: %+v", cp)
	}
	if err := config.ValidateServiceConfig(cp); err != nil {
		t.Errorf("expected valid service config: %v", err)
	}
}
