// Package llm generates text from an OpenAI-compatible chat endpoint such
// as Ollama's /v1 API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse is returned when the model produced no choices.
var ErrEmptyResponse = errors.New("model returned no choices")

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config configures an OpenAIGenerator.
type Config struct {
	// Server root, e.g. http://ollama:11434. "/v1" is appended.
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	// Whole-request timeout enforced by the HTTP client.
	Timeout time.Duration
}

// OpenAIGenerator is a Generator backed by go-openai.
type OpenAIGenerator struct {
	client *openai.Client
	cfg    Config
}

// NewOpenAIGenerator creates a generator for cfg. Ollama ignores the API
// key, but the client requires one.
func NewOpenAIGenerator(cfg Config) *OpenAIGenerator {
	oc := openai.DefaultConfig("ollama")
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/v1"
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	slog.Info("initializing language model client", "base_url", oc.BaseURL, "model", cfg.Model)
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(oc),
		cfg:    cfg,
	}
}

// Generate sends prompt as a single user message and returns the trimmed
// reply.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	slog.Debug("received completion", "model", g.cfg.Model, "finish_reason", resp.Choices[0].FinishReason)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
