// Package scoring computes decision-quality scores for proposed actions.
package scoring

import (
	"strings"

	"github.com/spachava753/incidentbench/internal/models"
	"github.com/spachava753/incidentbench/internal/util"
)

// Composite weights. They sum to 1.
const (
	WeightValidity    = 0.40
	WeightSpecificity = 0.30
	WeightCorrectness = 0.30
)

const precision = 4

type specificityTier struct {
	score    float64
	keywords []string
}

// Checked in order; the first tier with a matching keyword wins.
var specificityTiers = []specificityTier{
	{1.0, []string{"v2.", "version"}},
	{0.67, []string{"rollback", "auth", "database"}},
	{0.33, []string{"deployment", "service"}},
}

type correctnessBand struct {
	minOverlap float64
	score      float64
}

var correctnessBands = []correctnessBand{
	{0.7, 1.0},
	{0.5, 0.75},
	{0.3, 0.50},
	{0.1, 0.25},
}

// Scorer scores action lists against a fixed ground-truth resolution.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	groundTruth map[string]struct{}
}

// New creates a scorer for the given ground-truth resolution.
func New(groundTruth string) *Scorer {
	return &Scorer{groundTruth: tokenSet(groundTruth)}
}

// Score computes the decision-quality scores of actions.
func (s *Scorer) Score(actions []string) models.Scores {
	if len(actions) == 0 {
		return models.Scores{}
	}

	// No structural validation is performed; any non-empty list is valid.
	validity := 1.0

	var specificity, correctness float64
	for _, a := range actions {
		lower := strings.ToLower(a)
		specificity += actionSpecificity(lower)
		correctness += s.actionCorrectness(lower)
	}
	n := float64(len(actions))
	specificity /= n
	correctness /= n

	dq := WeightValidity*validity + WeightSpecificity*specificity + WeightCorrectness*correctness

	return models.Scores{
		Validity:    util.Round(validity, precision),
		Specificity: util.Round(specificity, precision),
		Correctness: util.Round(correctness, precision),
		DQ:          util.Round(dq, precision),
		ActionCount: len(actions),
	}
}

// ScoreRecord lifts a trial into a scored record.
func (s *Scorer) ScoreRecord(rec models.TrialRecord) models.ScoredRecord {
	return models.ScoredRecord{
		TrialRecord: rec,
		Scores:      s.Score(rec.Actions),
	}
}

func actionSpecificity(lower string) float64 {
	for _, tier := range specificityTiers {
		for _, kw := range tier.keywords {
			if strings.Contains(lower, kw) {
				return tier.score
			}
		}
	}
	return 0
}

func (s *Scorer) actionCorrectness(lower string) float64 {
	if len(s.groundTruth) == 0 {
		return 0
	}

	var overlap int
	for tok := range tokenSet(lower) {
		if _, ok := s.groundTruth[tok]; ok {
			overlap++
		}
	}
	ratio := float64(overlap) / float64(len(s.groundTruth))

	for _, band := range correctnessBands {
		if ratio >= band.minOverlap {
			return band.score
		}
	}
	return 0
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
