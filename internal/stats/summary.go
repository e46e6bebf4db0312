package stats

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Summary describes the distribution of one metric within one group.
type Summary struct {
	Group   string  `json:"group"`
	N       int     `json:"n"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	CILower float64 `json:"ci95_lower"`
	CIUpper float64 `json:"ci95_upper"`
	Median  float64 `json:"median"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// ConditionSummary computes per-group descriptive statistics for metric,
// with a 95% confidence interval for the mean from Student's t. Groups
// with fewer than two observations get NaN spread statistics.
func (a *Analyzer) ConditionSummary(t Table, metric, groupBy string) ([]Summary, error) {
	groups, err := t.Groups(metric, groupBy)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(groups))
	for _, g := range groups {
		out = append(out, summarize(g))
	}
	return out, nil
}

func summarize(g Group) Summary {
	n := len(g.Values)
	sorted := slices.Clone(g.Values)
	slices.Sort(sorted)

	s := Summary{
		Group:  g.Label,
		N:      n,
		Mean:   stat.Mean(sorted, nil),
		Median: median(sorted),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
	}

	if n < 2 {
		s.Std, s.CILower, s.CIUpper = math.NaN(), math.NaN(), math.NaN()
		return s
	}

	s.Std = stat.StdDev(sorted, nil)
	sem := s.Std / math.Sqrt(float64(n))
	tCrit := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}.Quantile(0.975)
	s.CILower = s.Mean - tCrit*sem
	s.CIUpper = s.Mean + tCrit*sem
	return s
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
