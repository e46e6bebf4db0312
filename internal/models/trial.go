package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TrialRecord is one execution of one condition against the scenario.
type TrialRecord struct {
	TrialID      string            `json:"trial_id"`
	Condition    Condition         `json:"condition"`
	Sequence     int               `json:"sequence"`
	T2U          float64           `json:"t2u"`
	Actions      []string          `json:"actions"`
	Output       string            `json:"output"`
	AgentOutputs map[string]string `json:"agent_outputs,omitempty"`
	Fallback     bool              `json:"fallback"`
	Attempts     int               `json:"attempts,omitempty"`
	Timestamp    Timestamp         `json:"timestamp"`
}

// Scores holds the decision-quality sub-scores of an action list.
type Scores struct {
	Validity    float64 `json:"validity"`
	Specificity float64 `json:"specificity"`
	Correctness float64 `json:"correctness"`
	DQ          float64 `json:"dq"`
	ActionCount int     `json:"action_count"`
}

// ScoredRecord is a TrialRecord enriched with its scores. It is derived
// data and can always be recomputed from the trial.
type ScoredRecord struct {
	TrialRecord
	Scores
}

// Timestamp is an ISO-8601 instant. It also accepts the zone-less layout
// produced by Python's datetime.isoformat when decoding older result files.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return Timestamp{Time: time.Now()}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
