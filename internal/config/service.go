package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ServiceConfig configures a decision service process.
type ServiceConfig struct {
	Addr        string        `validate:"required"`
	OllamaURL   string        `validate:"required,url"`
	Model       string        `validate:"required"`
	Temperature float32       `validate:"gte=0,lte=2"`
	MaxTokens   int           `validate:"gt=0"`
	LLMTimeout  time.Duration `validate:"gt=0"`

	// copilot only
	FailureThreshold int           `validate:"gt=0"`
	ResetTimeout     time.Duration `validate:"gt=0"`

	// multiagent only
	OrchestrationTimeout time.Duration `validate:"gt=0"`
}

// DefaultCopilotConfig returns defaults for the single-agent service.
func DefaultCopilotConfig() ServiceConfig {
	cfg := defaultServiceConfig()
	cfg.MaxTokens = 200
	return cfg
}

// DefaultMultiAgentConfig returns defaults for the multi-agent service.
func DefaultMultiAgentConfig() ServiceConfig {
	cfg := defaultServiceConfig()
	cfg.MaxTokens = 150
	return cfg
}

func defaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Addr:                 ":8000",
		OllamaURL:            "http://ollama:11434",
		Model:                "tinyllama",
		Temperature:          0.7,
		LLMTimeout:           120 * time.Second,
		FailureThreshold:     5,
		ResetTimeout:         60 * time.Second,
		OrchestrationTimeout: 180 * time.Second,
	}
}

// ApplyServiceEnv overrides cfg from the service container environment.
func ApplyServiceEnv(cfg *ServiceConfig, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup("OLLAMA_URL"); ok && v != "" {
		cfg.OllamaURL = v
	}
	if v, ok := lookup("MODEL_NAME"); ok && v != "" {
		cfg.Model = v
	}
	if v, ok := lookup("TEMPERATURE"); ok && v != "" {
		t, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("parsing TEMPERATURE=%q: %w", v, err)
		}
		cfg.Temperature = float32(t)
	}
	if v, ok := lookup("MAX_TOKENS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing MAX_TOKENS=%q: %w", v, err)
		}
		cfg.MaxTokens = n
	}
	return nil
}

// ValidateServiceConfig reports every invalid field of cfg.
func ValidateServiceConfig(cfg ServiceConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid service config: %w", err)
	}
	return nil
}
