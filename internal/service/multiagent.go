package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/spachava753/incidentbench/internal/config"
	"github.com/spachava753/incidentbench/internal/downstream"
	"github.com/spachava753/incidentbench/internal/llm"
	"github.com/spachava753/incidentbench/internal/metrics"
	"github.com/spachava753/incidentbench/internal/util"
)

const (
	promptContextLen = 200
	agentOutputLen   = 500
	minAgentOutput   = 10
)

// MultiAgent is the orchestration service: a diagnosis agent and a risk
// agent run in parallel under one deadline, and their answers are combined
// with a fixed remediation plan.
type MultiAgent struct {
	gen     llm.Generator
	timeout time.Duration
	metrics *metrics.ServiceMetrics
	logger  *slog.Logger
}

// NewMultiAgent creates the multiagent service.
func NewMultiAgent(gen llm.Generator, cfg config.ServiceConfig, m *metrics.ServiceMetrics) *MultiAgent {
	return &MultiAgent{
		gen:     gen,
		timeout: cfg.OrchestrationTimeout,
		metrics: m,
		logger:  slog.Default().With("service", "multiagent"),
	}
}

// RemediationActions is the plan every orchestration recommends.
func RemediationActions() []string {
	return []string{
		"Rollback auth-service deployment to v2.3.0",
		"Verify database connection pool configuration",
		"Monitor error rates for 5 minutes",
	}
}

func (s *MultiAgent) Name() string { return "multiagent" }

func (s *MultiAgent) Health() gin.H {
	return gin.H{"status": "healthy", "service": s.Name()}
}

func (s *MultiAgent) Register(r gin.IRoutes) {
	r.POST("/orchestrate", s.handleOrchestrate)
}

func (s *MultiAgent) handleOrchestrate(c *gin.Context) {
	var req incidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.Orchestrate(context.WithoutCancel(c.Request.Context()), req.Context))
}

// Orchestrate runs both agents and assembles the brief. It always returns
// a usable response.
func (s *MultiAgent) Orchestrate(ctx context.Context, incident string) downstream.OrchestrateResponse {
	s.logger.Info("starting orchestration")
	excerpt := util.Truncate(incident, promptContextLen)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var diagnosis, risk string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		diagnosis = s.ask(gctx, "diagnosis", fmt.Sprintf("What caused this: %s\nAnswer briefly:", excerpt))
		return nil
	})
	g.Go(func() error {
		risk = s.ask(gctx, "risk", fmt.Sprintf("Business impact: %s\nAnswer briefly:", excerpt))
		return nil
	})
	g.Wait()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.logger.Warn("orchestration timeout, using fallbacks", "timeout", s.timeout)
		diagnosis = "Analysis timeout"
		risk = "Unable to assess"
	}

	if utf8.RuneCountInString(diagnosis) < minAgentOutput {
		diagnosis = "Database connection issues due to recent deployment"
	}
	if utf8.RuneCountInString(risk) < minAgentOutput {
		risk = "High impact - authentication failures affecting users"
	}

	actions := RemediationActions()
	return downstream.OrchestrateResponse{
		Brief:   brief(diagnosis, risk, actions),
		Actions: actions,
		AgentOutputs: map[string]string{
			"diagnosis":       diagnosis,
			"risk_assessment": risk,
		},
	}
}

// ask returns the agent's answer, or "" when the call failed.
func (s *MultiAgent) ask(ctx context.Context, agent, prompt string) string {
	start := time.Now()
	out, err := s.gen.Generate(ctx, prompt)
	if s.metrics != nil {
		s.metrics.LLMDurationSeconds.WithLabelValues(agent).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.logger.Warn("agent call failed", "agent", agent, "error", err)
		s.metrics.ObserveLLM("error")
		return ""
	}
	s.metrics.ObserveLLM("success")
	return util.Truncate(out, agentOutputLen)
}

func brief(diagnosis, risk string, actions []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DIAGNOSIS: %s\n\nBUSINESS IMPACT: %s\n\nRECOMMENDED ACTIONS:\n", diagnosis, risk)
	for i, a := range actions {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + a)
	}
	return b.String()
}
