package stats

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"
)

// MannWhitneyU runs a two-sided Mann-Whitney U test between the groups
// labelled x and y. Tied values share the mean of their ranks. The p-value
// uses the normal approximation with tie-corrected variance and a
// continuity correction. The reported statistic is U for x.
func (a *Analyzer) MannWhitneyU(t Table, metric, groupBy, x, y string) (Result, error) {
	groups, err := t.Groups(metric, groupBy)
	if err != nil {
		return Result{}, err
	}
	xs, ys := groupValues(groups, x), groupValues(groups, y)
	if len(xs) == 0 || len(ys) == 0 {
		return Result{}, fmt.Errorf("mann-whitney on %s (%s vs %s): %d and %d observations: %w",
			metric, x, y, len(xs), len(ys), ErrInsufficientData)
	}

	u, sigma := mannWhitney(xs, ys)
	if sigma == 0 {
		return Result{}, fmt.Errorf("mann-whitney on %s (%s vs %s): all values tied: %w", metric, x, y, ErrDegenerateVariance)
	}

	mu := float64(len(xs)*len(ys)) / 2
	z := (math.Abs(u-mu) - 0.5) / sigma
	p := min(1, 2*distuv.Normal{Mu: 0, Sigma: 1}.Survival(z))

	r := Result{
		Metric:      metric,
		Test:        fmt.Sprintf("Mann-Whitney U (%s vs %s)", x, y),
		Statistic:   u,
		PValue:      p,
		Alpha:       a.alpha,
		Significant: p < a.alpha,
		Notes:       "Two-sided, normal approximation with tie correction",
	}
	a.results = append(a.results, r)
	return r, nil
}

func groupValues(groups []Group, label string) []float64 {
	for _, g := range groups {
		if g.Label == label {
			return g.Values
		}
	}
	return nil
}

// mannWhitney returns U for xs and the tie-corrected standard deviation
// of U under the null hypothesis.
func mannWhitney(xs, ys []float64) (float64, float64) {
	type obs struct {
		v     float64
		fromX bool
	}
	pooled := make([]obs, 0, len(xs)+len(ys))
	for _, v := range xs {
		pooled = append(pooled, obs{v, true})
	}
	for _, v := range ys {
		pooled = append(pooled, obs{v, false})
	}
	slices.SortFunc(pooled, func(a, b obs) int {
		switch {
		case a.v < b.v:
			return -1
		case a.v > b.v:
			return 1
		}
		return 0
	})

	var rankSumX, ties float64
	for i := 0; i < len(pooled); {
		j := i + 1
		for j < len(pooled) && pooled[j].v == pooled[i].v {
			j++
		}
		// Positions i..j-1 hold ranks i+1..j.
		rank := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			if pooled[k].fromX {
				rankSumX += rank
			}
		}
		if c := float64(j - i); c > 1 {
			ties += c*c*c - c
		}
		i = j
	}

	n1, n2 := float64(len(xs)), float64(len(ys))
	n := n1 + n2
	u := rankSumX - n1*(n1+1)/2
	variance := n1 * n2 / 12 * ((n + 1) - ties/(n*(n-1)))
	if variance <= 0 {
		return u, 0
	}
	return u, math.Sqrt(variance)
}
