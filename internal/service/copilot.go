package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/spachava753/incidentbench/internal/breaker"
	"github.com/spachava753/incidentbench/internal/config"
	"github.com/spachava753/incidentbench/internal/downstream"
	"github.com/spachava753/incidentbench/internal/llm"
	"github.com/spachava753/incidentbench/internal/metrics"
	"github.com/spachava753/incidentbench/internal/util"
)

const copilotPrompt = `Analyze this incident briefly:

%s

Provide:
1. One sentence summary
2. Two specific actions

Format:
SUMMARY: [sentence]
ACTIONS:
- [action 1]
- [action 2]`

const (
	minCopilotOutput = 20
	maxSummaryLen    = 300
	maxActions       = 3
	minActionLen     = 6
)

// Copilot is the single-agent service. One breaker guards every call to
// the language model; when it refuses or the call fails the service still
// answers, with a fixed fallback.
type Copilot struct {
	gen     llm.Generator
	breaker *breaker.CircuitBreaker
	metrics *metrics.ServiceMetrics
	logger  *slog.Logger
}

// NewCopilot creates the copilot service.
func NewCopilot(gen llm.Generator, cfg config.ServiceConfig, m *metrics.ServiceMetrics) *Copilot {
	logger := slog.Default().With("service", "copilot")
	if m != nil {
		m.BreakerState.Set(metrics.BreakerStateValue(breaker.Closed))
	}
	return &Copilot{
		gen: gen,
		breaker: breaker.New(breaker.Config{
			FailureThreshold: cfg.FailureThreshold,
			ResetTimeout:     cfg.ResetTimeout,
			OnStateChange: func(from, to breaker.State) {
				logger.Warn("circuit breaker state change", "from", from, "to", to)
				if m != nil {
					m.BreakerState.Set(metrics.BreakerStateValue(to))
				}
			},
		}),
		metrics: m,
		logger:  logger,
	}
}

func (s *Copilot) Name() string { return "copilot" }

func (s *Copilot) Health() gin.H {
	return gin.H{
		"status":          "healthy",
		"service":         s.Name(),
		"circuit_breaker": s.breaker.State().String(),
	}
}

func (s *Copilot) Register(r gin.IRoutes) {
	r.POST("/analyze", s.handleAnalyze)
}

func (s *Copilot) handleAnalyze(c *gin.Context) {
	var req incidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("received analyze request", "circuit", s.breaker.State())
	c.JSON(http.StatusOK, s.Analyze(context.WithoutCancel(c.Request.Context()), req.Context))
}

// Analyze asks the model for a summary and actions. It always returns a
// usable response.
func (s *Copilot) Analyze(ctx context.Context, incident string) downstream.AnalyzeResponse {
	output, ok := s.generate(ctx, fmt.Sprintf(copilotPrompt, incident))
	if !ok || utf8.RuneCountInString(output) < minCopilotOutput {
		s.logger.Info("using fallback response")
		s.metrics.ObserveLLM("fallback")
		return downstream.AnalyzeResponse{
			Summary: "Service experiencing errors requiring immediate attention",
			Actions: []string{
				"Rollback recent deployment",
				"Check system logs and metrics",
			},
		}
	}
	return parseAnalysis(output)
}

func (s *Copilot) generate(ctx context.Context, prompt string) (string, bool) {
	if !s.breaker.CanAttempt() {
		s.logger.Warn("circuit breaker open, skipping model call")
		s.metrics.ObserveLLM("circuit_open")
		return "", false
	}

	start := time.Now()
	out, err := s.gen.Generate(ctx, prompt)
	if s.metrics != nil {
		s.metrics.LLMDurationSeconds.WithLabelValues("copilot").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.logger.Error("model call failed", "error", err)
		s.breaker.RecordFailure()
		s.metrics.ObserveLLM("error")
		return "", false
	}

	s.breaker.RecordSuccess()
	s.metrics.ObserveLLM("success")
	return out, true
}

// parseAnalysis extracts the SUMMARY and ACTIONS sections of a reply,
// substituting generic defaults for anything missing.
func parseAnalysis(output string) downstream.AnalyzeResponse {
	var summary string
	var actions []string

	if _, after, ok := strings.Cut(output, "SUMMARY:"); ok {
		before, _, _ := strings.Cut(after, "ACTIONS:")
		summary = strings.TrimSpace(before)
	}

	if _, after, ok := strings.Cut(output, "ACTIONS:"); ok {
		for line := range strings.Lines(after) {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "*") {
				continue
			}
			action := strings.TrimSpace(strings.TrimLeft(line, "-*"))
			if utf8.RuneCountInString(action) >= minActionLen {
				actions = append(actions, action)
			}
		}
	}

	if summary == "" {
		summary = "Service degradation detected"
	}
	if len(actions) == 0 {
		actions = []string{"Investigate recent changes", "Review system metrics"}
	}

	return downstream.AnalyzeResponse{
		Summary: util.Truncate(summary, maxSummaryLen),
		Actions: actions[:min(len(actions), maxActions)],
	}
}
