// Package stats runs significance tests and descriptive statistics over
// per-trial metric tables.
package stats

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrInsufficientData means too few groups or observations for a test.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDegenerateVariance means a test statistic is undefined because
	// the relevant variance is zero.
	ErrDegenerateVariance = errors.New("degenerate variance")
	// ErrUnknownMetric means a row lacks the requested metric or label.
	ErrUnknownMetric = errors.New("unknown metric")
)

// Row is one observation: categorical labels plus numeric metrics.
type Row struct {
	Labels  map[string]string
	Metrics map[string]float64
}

// Table is an in-memory set of observations. Analyses never modify it.
type Table []Row

// Group is the values of one metric for one label value.
type Group struct {
	Label  string
	Values []float64
}

// Groups partitions the table by the groupBy label and collects metric.
// Groups are returned in ascending label order.
func (t Table) Groups(metric, groupBy string) ([]Group, error) {
	byLabel := make(map[string][]float64)
	for i, r := range t {
		label, ok := r.Labels[groupBy]
		if !ok {
			return nil, fmt.Errorf("row %d has no label %q: %w", i, groupBy, ErrUnknownMetric)
		}
		v, ok := r.Metrics[metric]
		if !ok {
			return nil, fmt.Errorf("row %d has no metric %q: %w", i, metric, ErrUnknownMetric)
		}
		byLabel[label] = append(byLabel[label], v)
	}

	labels := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	slices.Sort(labels)

	groups := make([]Group, 0, len(labels))
	for _, l := range labels {
		groups = append(groups, Group{Label: l, Values: byLabel[l]})
	}
	return groups, nil
}
