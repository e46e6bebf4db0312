package stats

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultAlpha is the significance level used when none is given.
const DefaultAlpha = 0.05

// Result is the outcome of one hypothesis test.
type Result struct {
	Metric      string  `json:"metric"`
	Test        string  `json:"test"`
	Statistic   float64 `json:"statistic"`
	PValue      float64 `json:"p_value"`
	Alpha       float64 `json:"alpha"`
	Significant bool    `json:"significant"`
	Notes       string  `json:"notes,omitempty"`
}

// Analyzer accumulates test results in the order they were run.
type Analyzer struct {
	alpha   float64
	results []Result
}

// NewAnalyzer creates an analyzer with significance level alpha, or
// DefaultAlpha when alpha is not in (0, 1).
func NewAnalyzer(alpha float64) *Analyzer {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultAlpha
	}
	return &Analyzer{alpha: alpha}
}

// Alpha returns the configured significance level.
func (a *Analyzer) Alpha() float64 {
	return a.alpha
}

// Results returns a copy of the accumulated results.
func (a *Analyzer) Results() []Result {
	return append([]Result(nil), a.results...)
}

// OneWayANOVA tests whether the means of metric differ across groups.
func (a *Analyzer) OneWayANOVA(t Table, metric, groupBy string) (Result, error) {
	groups, err := t.Groups(metric, groupBy)
	if err != nil {
		return Result{}, err
	}
	if len(groups) < 2 {
		return Result{}, fmt.Errorf("anova on %s: need at least 2 groups, have %d: %w", metric, len(groups), ErrInsufficientData)
	}

	var all []float64
	for _, g := range groups {
		if len(g.Values) < 2 {
			return Result{}, fmt.Errorf("anova on %s: group %s has %d observations: %w", metric, g.Label, len(g.Values), ErrInsufficientData)
		}
		all = append(all, g.Values...)
	}

	grand := stat.Mean(all, nil)
	var ssBetween, ssWithin float64
	for _, g := range groups {
		m := stat.Mean(g.Values, nil)
		ssBetween += float64(len(g.Values)) * (m - grand) * (m - grand)
		for _, v := range g.Values {
			ssWithin += (v - m) * (v - m)
		}
	}
	if ssWithin == 0 {
		return Result{}, fmt.Errorf("anova on %s: zero within-group variance: %w", metric, ErrDegenerateVariance)
	}

	dfBetween := float64(len(groups) - 1)
	dfWithin := float64(len(all) - len(groups))
	f := (ssBetween / dfBetween) / (ssWithin / dfWithin)
	p := distuv.F{D1: dfBetween, D2: dfWithin}.Survival(f)

	r := Result{
		Metric:      metric,
		Test:        "One-Way ANOVA",
		Statistic:   f,
		PValue:      p,
		Alpha:       a.alpha,
		Significant: p < a.alpha,
		Notes:       fmt.Sprintf("Comparing %d conditions", len(groups)),
	}
	a.results = append(a.results, r)
	return r, nil
}

// PairwiseTTests runs a pooled-variance two-sample t-test for every pair
// of groups. With bonferroni set each comparison uses alpha divided by the
// number of pairs. Pairs that cannot be tested are reported through the
// returned error while the other pairs still produce results.
func (a *Analyzer) PairwiseTTests(t Table, metric, groupBy string, bonferroni bool) ([]Result, error) {
	groups, err := t.Groups(metric, groupBy)
	if err != nil {
		return nil, err
	}
	if len(groups) < 2 {
		return nil, fmt.Errorf("pairwise t-tests on %s: need at least 2 groups, have %d: %w", metric, len(groups), ErrInsufficientData)
	}

	pairs := len(groups) * (len(groups) - 1) / 2
	alpha := a.alpha
	notes := "Unadjusted"
	if bonferroni {
		alpha = a.alpha / float64(pairs)
		notes = "Bonferroni corrected"
	}

	var (
		results []Result
		errs    []error
	)
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			g1, g2 := groups[i], groups[j]
			tStat, p, err := studentT(g1.Values, g2.Values)
			if err != nil {
				errs = append(errs, fmt.Errorf("t-test on %s (%s vs %s): %w", metric, g1.Label, g2.Label, err))
				continue
			}
			r := Result{
				Metric:      metric,
				Test:        fmt.Sprintf("Two-Sample t-test (%s vs %s)", g1.Label, g2.Label),
				Statistic:   tStat,
				PValue:      p,
				Alpha:       alpha,
				Significant: p < alpha,
				Notes:       notes,
			}
			results = append(results, r)
			a.results = append(a.results, r)
		}
	}

	return results, errors.Join(errs...)
}

func studentT(x, y []float64) (float64, float64, error) {
	n1, n2 := float64(len(x)), float64(len(y))
	if len(x) < 2 || len(y) < 2 {
		return 0, 0, ErrInsufficientData
	}

	m1, v1 := stat.MeanVariance(x, nil)
	m2, v2 := stat.MeanVariance(y, nil)
	df := n1 + n2 - 2
	pooled := ((n1-1)*v1 + (n2-1)*v2) / df
	se := math.Sqrt(pooled * (1/n1 + 1/n2))
	if se == 0 {
		return 0, 0, ErrDegenerateVariance
	}

	tStat := (m1 - m2) / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.CDF(-math.Abs(tStat))
	return tStat, p, nil
}

// Report renders the accumulated results as markdown.
func (a *Analyzer) Report() string {
	var b strings.Builder
	b.WriteString("# Statistical Analysis Report\n\n")
	fmt.Fprintf(&b, "Significance level: α = %g\n\n", a.alpha)

	for _, r := range a.results {
		mark := "ns"
		if r.Significant {
			mark = "***"
		}
		fmt.Fprintf(&b, "## %s\n", r.Test)
		fmt.Fprintf(&b, "- Metric: %s\n", r.Metric)
		fmt.Fprintf(&b, "- Statistic: %.4f\n", r.Statistic)
		fmt.Fprintf(&b, "- p-value: %.6f %s\n", r.PValue, mark)
		fmt.Fprintf(&b, "- Alpha: %.4f\n", r.Alpha)
		fmt.Fprintf(&b, "- Significant: %t\n", r.Significant)
		if r.Notes != "" {
			fmt.Fprintf(&b, "- Notes: %s\n", r.Notes)
		}
		b.WriteString("\n")
	}

	return b.String()
}
