// Package executor drives an evaluation run: readiness, the three
// condition blocks, persistence and the final aggregate.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/spachava753/incidentbench/internal/breaker"
	"github.com/spachava753/incidentbench/internal/downstream"
	"github.com/spachava753/incidentbench/internal/metrics"
	"github.com/spachava753/incidentbench/internal/models"
	"github.com/spachava753/incidentbench/internal/ratelimit"
	"github.com/spachava753/incidentbench/internal/results"
)

// Progress is reported to the observer on every state change, every
// ProgressEvery trials and at the end of each condition.
type Progress struct {
	State     models.RunState
	Condition models.Condition
	// Trials finished in the whole run
	Completed int
	Total     int
	// Fallback records so far in the current condition
	Fallbacks int
}

var errUnknownCondition = errors.New("unknown condition")

// Option configures a RunOrchestrator.
type Option func(*RunOrchestrator)

// WithObserver registers a progress callback. It runs on the run goroutine.
func WithObserver(fn func(Progress)) Option {
	return func(o *RunOrchestrator) { o.observer = fn }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.RunMetrics) Option {
	return func(o *RunOrchestrator) { o.metrics = m }
}

// WithLogger overrides slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *RunOrchestrator) { o.logger = l }
}

// WithHTTPClient overrides the client used for downstream calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *RunOrchestrator) { o.httpClient = c }
}

// WithExecutor replaces the executor of condition c. NewRunOrchestrator
// rejects conditions outside C1, C2 and C3.
func WithExecutor(c models.Condition, e TrialExecutor) Option {
	return func(o *RunOrchestrator) { o.overrides[c] = e }
}

// RunOrchestrator coordinates the execution of all trials in a run.
type RunOrchestrator struct {
	cfg      models.RunConfig
	scenario models.Scenario
	store    *results.Store

	observer   func(Progress)
	metrics    *metrics.RunMetrics
	logger     *slog.Logger
	httpClient *http.Client
	overrides  map[models.Condition]TrialExecutor

	copilot    *downstream.Client
	multiagent *downstream.Client
	executors  map[models.Condition]TrialExecutor
	state      models.RunState
}

// NewRunOrchestrator creates the results directory and wires one limiter
// and one breaker per downstream service. The config must already be
// validated.
func NewRunOrchestrator(cfg models.RunConfig, scenario models.Scenario, opts ...Option) (*RunOrchestrator, error) {
	o := &RunOrchestrator{
		cfg:       cfg,
		scenario:  scenario,
		logger:    slog.Default(),
		overrides: make(map[models.Condition]TrialExecutor),
		state:     models.StateInitializing,
	}
	for _, opt := range opts {
		opt(o)
	}

	store, err := results.NewStore(cfg.ResultsDir)
	if err != nil {
		return nil, err
	}
	o.store = store

	o.copilot = downstream.NewClient(cfg.SingleAgent.URL, o.httpClient)
	o.multiagent = downstream.NewClient(cfg.MultiAgent.URL, o.httpClient)

	s := newSampler(cfg.Seed)
	incident := scenario.Context()

	o.executors = map[models.Condition]TrialExecutor{
		models.ConditionBaseline: &BaselineExecutor{t2u: cfg.Baseline.T2U, sampler: s},
		models.ConditionSingleAgent: o.newRemote(models.ConditionSingleAgent, "copilot", cfg.SingleAgent,
			o.copilot, analyze, SingleAgentFallback(), incident, s),
		models.ConditionMultiAgent: o.newRemote(models.ConditionMultiAgent, "multiagent", cfg.MultiAgent,
			o.multiagent, orchestrate, MultiAgentFallback(), incident, s),
	}
	for c, e := range o.overrides {
		if _, ok := o.executors[c]; !ok {
			return nil, fmt.Errorf("%w: %s", errUnknownCondition, c)
		}
		o.executors[c] = e
	}

	return o, nil
}

func (o *RunOrchestrator) newRemote(c models.Condition, name string, cfg models.ServiceConfig, client *downstream.Client,
	call callFunc, fb Fallback, incident string, s *sampler) *RemoteExecutor {
	logger := o.logger.With("condition", c, "endpoint", name)
	o.metrics.SetBreakerState(name, breaker.Closed)

	cb := breaker.New(breaker.Config{
		FailureThreshold: o.cfg.CircuitBreaker.FailureThreshold,
		ResetTimeout:     o.cfg.CircuitBreaker.ResetTimeout,
		OnStateChange: func(from, to breaker.State) {
			logger.Info("circuit breaker state change", "from", from, "to", to)
			o.metrics.SetBreakerState(name, to)
		},
	})

	return &RemoteExecutor{
		condition: c,
		cfg:       cfg,
		incident:  incident,
		client:    client,
		call:      call,
		limiter:   ratelimit.New(o.cfg.RateLimitPerMinute),
		breaker:   cb,
		fallback:  fb,
		sampler:   s,
		metrics:   o.metrics,
		logger:    logger,
	}
}

// Store returns the results store the run writes to.
func (o *RunOrchestrator) Store() *results.Store {
	return o.store
}

// Run executes every condition in order and writes the aggregate. When ctx
// is cancelled the run stops between trials, leaves the per-trial files in
// place and returns the context error without an aggregate.
func (o *RunOrchestrator) Run(ctx context.Context) (*models.AggregateRun, error) {
	startTime := time.Now()
	n := o.cfg.TrialsPerCondition
	total := n * len(models.Conditions())

	o.logger.Info("starting evaluation",
		"scenario", o.scenario.Name,
		"trials_per_condition", n,
		"seed", o.cfg.Seed,
		"results_dir", o.store.Dir())
	o.setState(models.StateInitializing, "", 0, total)

	o.setState(models.StateWaitingForDownstream, "", 0, total)
	if err := o.waitForServices(ctx); err != nil {
		return nil, err
	}

	trials := make([]models.TrialRecord, 0, total)
	fallbacks := make(map[models.Condition]int)

	for _, c := range models.Conditions() {
		exec, ok := o.executors[c]
		if !ok {
			return nil, fmt.Errorf("%w: %s", errUnknownCondition, c)
		}
		every := o.progressEvery(c)
		o.setState(models.RunningState(c), c, len(trials), total)
		o.logger.Info("running condition", "condition", c, "description", c.Description())

		for seq := range n {
			if err := ctx.Err(); err != nil {
				o.logger.Warn("run cancelled", "completed", len(trials), "total", total)
				return nil, err
			}

			rec, err := exec.Execute(ctx, seq)
			if err != nil {
				return nil, fmt.Errorf("executing trial %s: %w", models.TrialID(c, seq), err)
			}
			if err := o.store.WriteTrial(rec); err != nil {
				return nil, err
			}
			o.metrics.ObserveTrial(rec)

			trials = append(trials, rec)
			if rec.Fallback {
				fallbacks[c]++
			}

			if done := seq + 1; done%every == 0 || done == n {
				o.logger.Info("progress",
					"condition", c,
					"done", done,
					"of", n,
					"fallbacks", fallbacks[c])
				o.report(Progress{
					State:     o.state,
					Condition: c,
					Completed: len(trials),
					Total:     total,
					Fallbacks: fallbacks[c],
				})
			}
		}
	}

	run := &models.AggregateRun{
		Metadata: models.RunMetadata{
			RunID:              uuid.NewString(),
			TotalTrials:        len(trials),
			TrialsPerCondition: n,
			RandomSeed:         o.cfg.Seed,
			Scenario:           o.scenario.Name,
			RateLimitPerMinute: o.cfg.RateLimitPerMinute,
			FallbackTrials:     fallbacks,
			StartedAt:          startTime,
			EndedAt:            time.Now(),
			Timestamp:          models.Now(),
		},
		Trials: trials,
	}
	if err := o.store.WriteAggregate(run); err != nil {
		return nil, err
	}

	o.setState(models.StateFinalized, "", len(trials), total)
	o.logger.Info("evaluation complete",
		"total_trials", len(trials),
		"fallbacks", fallbacks,
		"duration", time.Since(startTime).Round(time.Millisecond))

	return run, nil
}

// waitForServices polls /health of both services. A service that never
// reports healthy is logged and the run proceeds; its trials will fall
// back.
func (o *RunOrchestrator) waitForServices(ctx context.Context) error {
	rc := o.cfg.Readiness
	for _, svc := range []struct {
		name   string
		client *downstream.Client
	}{
		{"copilot", o.copilot},
		{"multiagent", o.multiagent},
	} {
		var lastErr error
		ready := false
		for attempt := 1; attempt <= rc.MaxAttempts; attempt++ {
			probeCtx, cancel := context.WithTimeout(ctx, rc.Timeout)
			lastErr = svc.client.Health(probeCtx)
			cancel()
			if lastErr == nil {
				ready = true
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if attempt < rc.MaxAttempts {
				if err := sleep(ctx, rc.Interval); err != nil {
					return err
				}
			}
		}

		if ready {
			o.logger.Info("service ready", "service", svc.name, "url", svc.client.BaseURL())
		} else {
			o.logger.Warn("service not ready, continuing",
				"service", svc.name,
				"url", svc.client.BaseURL(),
				"attempts", rc.MaxAttempts,
				"error", lastErr)
		}
	}
	return nil
}

func (o *RunOrchestrator) progressEvery(c models.Condition) int {
	var every int
	switch c {
	case models.ConditionBaseline:
		every = o.cfg.Baseline.ProgressEvery
	case models.ConditionSingleAgent:
		every = o.cfg.SingleAgent.ProgressEvery
	case models.ConditionMultiAgent:
		every = o.cfg.MultiAgent.ProgressEvery
	}
	return max(every, 1)
}

func (o *RunOrchestrator) setState(s models.RunState, c models.Condition, completed, total int) {
	o.state = s
	o.metrics.SetRunState(s)
	o.report(Progress{State: s, Condition: c, Completed: completed, Total: total})
}

func (o *RunOrchestrator) report(p Progress) {
	if o.observer != nil {
		o.observer(p)
	}
}
