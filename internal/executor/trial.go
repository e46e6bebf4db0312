package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/spachava753/incidentbench/internal/breaker"
	"github.com/spachava753/incidentbench/internal/downstream"
	"github.com/spachava753/incidentbench/internal/metrics"
	"github.com/spachava753/incidentbench/internal/models"
	"github.com/spachava753/incidentbench/internal/ratelimit"
	"github.com/spachava753/incidentbench/internal/util"
)

// TrialExecutor produces the trial record for one sequence number of one
// condition. A returned error aborts the run; downstream failures never
// surface here because they end in a fallback record.
type TrialExecutor interface {
	Execute(ctx context.Context, seq int) (models.TrialRecord, error)
}

const baselineOutput = "Manual dashboard analysis (no AI assistance)"

// Fallback is the hardcoded result recorded when every attempt failed.
type Fallback struct {
	Actions []string
	Output  string
}

// SingleAgentFallback is recorded for C2 after retry exhaustion.
func SingleAgentFallback() Fallback {
	return Fallback{
		Actions: []string{
			"Rollback auth-service to previous version",
			"Check database connection pool",
		},
		Output: "Analysis unavailable - using fallback",
	}
}

// MultiAgentFallback is recorded for C3 after retry exhaustion.
func MultiAgentFallback() Fallback {
	return Fallback{
		Actions: []string{
			"Rollback auth-service to v2.3.0",
			"Verify database connection pool settings",
			"Monitor error rates post-rollback",
		},
		Output: "Multi-agent analysis unavailable - using fallback",
	}
}

// sampler draws t2u values from a seeded normal distribution. It is not
// safe for concurrent use; the run drives it from one goroutine.
type sampler struct {
	rng *rand.Rand
}

func newSampler(seed int64) *sampler {
	return &sampler{rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)))}
}

func (s *sampler) sample(d models.Distribution) float64 {
	return util.Round(max(0, d.MeanSec+d.StdSec*s.rng.NormFloat64()), 2)
}

// BaselineExecutor simulates unassisted manual triage. It makes no
// network calls.
type BaselineExecutor struct {
	t2u     models.Distribution
	sampler *sampler
}

// Execute returns a C1 record with a sampled t2u and no actions.
func (e *BaselineExecutor) Execute(ctx context.Context, seq int) (models.TrialRecord, error) {
	return models.TrialRecord{
		TrialID:   models.TrialID(models.ConditionBaseline, seq),
		Condition: models.ConditionBaseline,
		Sequence:  seq,
		T2U:       e.sampler.sample(e.t2u),
		Actions:   []string{},
		Output:    baselineOutput,
		Timestamp: models.Now(),
	}, nil
}

// outcome is what a successful remote call contributes to a record.
type outcome struct {
	actions      []string
	output       string
	agentOutputs map[string]string
}

type callFunc func(ctx context.Context, c *downstream.Client, incident string) (outcome, error)

func analyze(ctx context.Context, c *downstream.Client, incident string) (outcome, error) {
	resp, err := c.Analyze(ctx, incident)
	if err != nil {
		return outcome{}, err
	}
	return outcome{actions: resp.Actions, output: resp.Summary}, nil
}

func orchestrate(ctx context.Context, c *downstream.Client, incident string) (outcome, error) {
	resp, err := c.Orchestrate(ctx, incident)
	if err != nil {
		return outcome{}, err
	}
	return outcome{actions: resp.Actions, output: resp.Brief, agentOutputs: resp.AgentOutputs}, nil
}

// RemoteExecutor runs C2 and C3 trials against a decision service with
// rate limiting, a circuit breaker, bounded retries and a fallback.
type RemoteExecutor struct {
	condition models.Condition
	cfg       models.ServiceConfig
	incident  string
	client    *downstream.Client
	call      callFunc
	limiter   *ratelimit.Limiter
	breaker   *breaker.CircuitBreaker
	fallback  Fallback
	sampler   *sampler
	metrics   *metrics.RunMetrics
	logger    *slog.Logger
}

// Execute performs one remote trial. It returns an error only when ctx is
// cancelled.
func (e *RemoteExecutor) Execute(ctx context.Context, seq int) (models.TrialRecord, error) {
	rec := models.TrialRecord{
		TrialID:   models.TrialID(e.condition, seq),
		Condition: e.condition,
		Sequence:  seq,
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return rec, err
	}

	start := time.Now()
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		rec.Attempts = attempt

		out, err := e.attempt(ctx, attempt)
		if err == nil {
			rec.T2U = util.Round(time.Since(start).Seconds(), 2)
			rec.Actions = nonNil(out.actions)
			rec.Output = out.output
			rec.AgentOutputs = out.agentOutputs
			rec.Timestamp = models.Now()
			return rec, nil
		}

		if ctx.Err() != nil {
			return rec, ctx.Err()
		}

		errType := models.AttemptErrorType(err)
		e.metrics.ObserveAttemptFailure(e.condition, errType)
		e.logger.Warn("attempt failed",
			"trial", rec.TrialID,
			"attempt", attempt,
			"max_attempts", e.cfg.MaxAttempts,
			"type", errType,
			"error", err)

		if attempt < e.cfg.MaxAttempts {
			if err := sleep(ctx, e.cfg.Backoff); err != nil {
				return rec, err
			}
		}
	}

	e.logger.Warn("all attempts failed, using fallback", "trial", rec.TrialID)
	rec.T2U = e.sampler.sample(e.cfg.FallbackT2U)
	rec.Actions = append([]string(nil), e.fallback.Actions...)
	rec.Output = e.fallback.Output
	rec.Fallback = true
	rec.Timestamp = models.Now()
	return rec, nil
}

func (e *RemoteExecutor) attempt(ctx context.Context, attempt int) (outcome, error) {
	if !e.breaker.CanAttempt() {
		return outcome{}, &models.AttemptError{
			Type:    models.ErrCircuitOpen,
			Attempt: attempt,
			Err:     fmt.Errorf("circuit breaker for %s is %s", e.client.BaseURL(), e.breaker.State()),
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	out, err := e.call(callCtx, e.client, e.incident)
	if err != nil {
		e.breaker.RecordFailure()
		return outcome{}, &models.AttemptError{
			Type:    downstream.Classify(callCtx, err),
			Attempt: attempt,
			Err:     err,
		}
	}

	e.breaker.RecordSuccess()
	return out, nil
}

func nonNil(actions []string) []string {
	if actions == nil {
		return []string{}
	}
	return actions
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
