package models

import "time"

// RunConfig represents the parsed evaluation config file.
type RunConfig struct {
	TrialsPerCondition int                  `yaml:"trials_per_condition" json:"trials_per_condition" validate:"gt=0"`
	Seed               int64                `yaml:"seed" json:"seed"`
	ResultsDir         string               `yaml:"results_dir" json:"results_dir" validate:"required"`
	ScenarioPath       string               `yaml:"scenario_path,omitempty" json:"scenario_path,omitempty"`
	RateLimitPerMinute int                  `yaml:"rate_limit_per_minute" json:"rate_limit_per_minute" validate:"gt=0"`
	Readiness          ReadinessConfig      `yaml:"readiness" json:"readiness"`
	CircuitBreaker     CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
	Baseline           BaselineConfig       `yaml:"baseline" json:"baseline"`
	SingleAgent        ServiceConfig        `yaml:"single_agent" json:"single_agent"`
	MultiAgent         ServiceConfig        `yaml:"multi_agent" json:"multi_agent"`
}

// ReadinessConfig controls health polling before the run starts.
type ReadinessConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts" validate:"gt=0"`
	Interval    time.Duration `yaml:"interval" json:"interval" validate:"gte=0"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
}

// CircuitBreakerConfig configures the per-endpoint breakers.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" validate:"gt=0"`
	ResetTimeout     time.Duration `yaml:"reset_timeout" json:"reset_timeout" validate:"gt=0"`
}

// Distribution is a normal distribution in seconds.
type Distribution struct {
	MeanSec float64 `yaml:"mean_sec" json:"mean_sec" validate:"gte=0"`
	StdSec  float64 `yaml:"std_sec" json:"std_sec" validate:"gte=0"`
}

// BaselineConfig configures the simulated C1 arm.
type BaselineConfig struct {
	T2U           Distribution `yaml:"t2u" json:"t2u"`
	ProgressEvery int          `yaml:"progress_every" json:"progress_every" validate:"gt=0"`
}

// ServiceConfig configures a remote C2/C3 arm.
type ServiceConfig struct {
	URL           string        `yaml:"url" json:"url" validate:"required,url"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	MaxAttempts   int           `yaml:"max_attempts" json:"max_attempts" validate:"gt=0"`
	Backoff       time.Duration `yaml:"backoff" json:"backoff" validate:"gte=0"`
	FallbackT2U   Distribution  `yaml:"fallback_t2u" json:"fallback_t2u"`
	ProgressEvery int           `yaml:"progress_every" json:"progress_every" validate:"gt=0"`
}

// RunState is a stage of a run's lifecycle.
type RunState string

const (
	StateInitializing         RunState = "INITIALIZING"
	StateWaitingForDownstream RunState = "WAITING_FOR_DOWNSTREAM"
	StateRunningC1            RunState = "RUNNING_C1"
	StateRunningC2            RunState = "RUNNING_C2"
	StateRunningC3            RunState = "RUNNING_C3"
	StateFinalized            RunState = "FINALIZED"
)

// RunningState returns the state in which trials of c execute.
func RunningState(c Condition) RunState {
	switch c {
	case ConditionBaseline:
		return StateRunningC1
	case ConditionSingleAgent:
		return StateRunningC2
	default:
		return StateRunningC3
	}
}

// RunMetadata describes a finished run.
type RunMetadata struct {
	RunID              string            `json:"run_id"`
	TotalTrials        int               `json:"total_trials"`
	TrialsPerCondition int               `json:"trials_per_condition"`
	RandomSeed         int64             `json:"random_seed"`
	Scenario           string            `json:"scenario"`
	RateLimitPerMinute int               `json:"rate_limit_per_minute,omitempty"`
	FallbackTrials     map[Condition]int `json:"fallback_trials,omitempty"`
	StartedAt          time.Time         `json:"started_at,omitzero"`
	EndedAt            time.Time         `json:"ended_at,omitzero"`
	Timestamp          Timestamp         `json:"timestamp"`
}

// AggregateRun is the single artifact written at the end of a run.
type AggregateRun struct {
	Metadata RunMetadata   `json:"metadata"`
	Trials   []TrialRecord `json:"trials"`
}

// ByCondition returns the trials of c in stored order.
func (r *AggregateRun) ByCondition(c Condition) []TrialRecord {
	var out []TrialRecord
	for _, t := range r.Trials {
		if t.Condition == c {
			out = append(out, t)
		}
	}
	return out
}
