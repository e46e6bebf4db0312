package models

import "fmt"

// Condition identifies one experimental arm.
type Condition string

const (
	// ConditionBaseline is unassisted manual triage. No network calls.
	ConditionBaseline Condition = "C1"
	// ConditionSingleAgent asks the copilot service for a summary and actions.
	ConditionSingleAgent Condition = "C2"
	// ConditionMultiAgent asks the multiagent service for an orchestrated brief.
	ConditionMultiAgent Condition = "C3"
)

// Conditions lists every condition in execution order.
func Conditions() []Condition {
	return []Condition{ConditionBaseline, ConditionSingleAgent, ConditionMultiAgent}
}

// ParseCondition converts a condition code into a Condition.
func ParseCondition(s string) (Condition, error) {
	switch c := Condition(s); c {
	case ConditionBaseline, ConditionSingleAgent, ConditionMultiAgent:
		return c, nil
	default:
		return "", fmt.Errorf("unknown condition %q", s)
	}
}

// Description returns the human-readable arm name.
func (c Condition) Description() string {
	switch c {
	case ConditionBaseline:
		return "Baseline"
	case ConditionSingleAgent:
		return "Single-Agent"
	case ConditionMultiAgent:
		return "Multi-Agent"
	default:
		return string(c)
	}
}

// TrialID formats the identifier of the seq'th trial of c.
func TrialID(c Condition, seq int) string {
	return fmt.Sprintf("%s_%03d", c, seq)
}
