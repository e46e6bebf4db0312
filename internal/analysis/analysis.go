// Package analysis re-scores a finished run and tests whether the
// conditions differ in time to understanding and decision quality.
package analysis

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/spachava753/incidentbench/internal/models"
	"github.com/spachava753/incidentbench/internal/results"
	"github.com/spachava753/incidentbench/internal/scoring"
	"github.com/spachava753/incidentbench/internal/stats"
)

// Output files written to Options.OutputDir.
const (
	RescoredFile   = "rescored_metrics.csv"
	ReportFile     = "statistical_analysis.md"
	SummaryT2UFile = "summary_t2u.csv"
	SummaryDQFile  = "summary_dq.csv"
	ComponentsFile = "summary_statistics.csv"
)

const (
	metricT2U = "t2u"
	metricDQ  = "dq"
	labelCond = "condition"

	// A decision with dq above this is considered actionable.
	actionableDQ = 0.5
)

// Options configures an analysis.
type Options struct {
	ResultsDir string
	// Defaults to ResultsDir/analysis.
	OutputDir   string
	GroundTruth string
	// Trial IDs to drop before scoring, e.g. known outliers.
	Exclude    []string
	Alpha      float64
	Bonferroni bool
	Logger     *slog.Logger
}

// ConditionStats summarizes the scored trials of one condition.
type ConditionStats struct {
	Condition     models.Condition
	N             int
	MeanT2U       float64
	StdT2U        float64
	MeanDQ        float64
	StdDQ         float64
	// DQ components
	MeanValidity    float64
	StdValidity     float64
	MeanSpecificity float64
	StdSpecificity  float64
	MeanCorrectness float64
	StdCorrectness  float64
	MeanActions   float64
	StdActions    float64
	ActionablePct float64
	Fallbacks     int
}

// Improvements are the headline comparisons of the study. Values are NaN
// when the reference mean is zero or a condition is missing.
type Improvements struct {
	// (C1 - C3) / C1 mean t2u, percent
	T2UReductionPct float64
	// (C3 - C2) / C2 mean dq, percent
	DQImprovementPct float64
	// Standardized C3 minus C2 dq difference with pooled std
	CohensD float64
}

// Report is the in-memory result of an analysis.
type Report struct {
	RunID        string
	Scored       []models.ScoredRecord
	Excluded     []string
	Conditions   []ConditionStats
	Tests        []stats.Result
	SummaryT2U   []stats.Summary
	SummaryDQ    []stats.Summary
	Improvements Improvements
	// Statistical tests that could not be computed
	Warnings  []string
	OutputDir string
}

// Run loads the run in opts.ResultsDir, re-scores it and writes every
// output file. Failed statistical tests are recorded as warnings rather
// than errors.
func Run(opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.GroundTruth == "" {
		return nil, errors.New("ground truth is required")
	}
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = filepath.Join(opts.ResultsDir, "analysis")
	}

	store, err := results.OpenStore(opts.ResultsDir)
	if err != nil {
		return nil, err
	}
	run, err := store.Load()
	if err != nil {
		return nil, err
	}
	logger.Info("loaded trials", "count", len(run.Trials), "results_dir", opts.ResultsDir)

	trials, excluded := exclude(run.Trials, opts.Exclude)
	for _, id := range opts.Exclude {
		if !slices.Contains(excluded, id) {
			logger.Warn("excluded trial not found", "trial", id)
		}
	}
	if len(excluded) > 0 {
		logger.Info("excluded trials", "trials", excluded)
	}

	rep := &Report{
		RunID:     run.Metadata.RunID,
		Excluded:  excluded,
		Scored:    Rescore(trials, opts.GroundTruth),
		OutputDir: outDir,
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("creating analysis directory: %w", err)
	}
	if err := writeRescored(filepath.Join(outDir, RescoredFile), rep.Scored); err != nil {
		return nil, err
	}

	table := toTable(rep.Scored)
	analyzer := stats.NewAnalyzer(opts.Alpha)
	for _, metric := range []string{metricT2U, metricDQ} {
		if _, err := analyzer.OneWayANOVA(table, metric, labelCond); err != nil {
			rep.warn(logger, metric, "anova", err)
		}
		if _, err := analyzer.PairwiseTTests(table, metric, labelCond, opts.Bonferroni); err != nil {
			rep.warn(logger, metric, "pairwise t-tests", err)
		}
	}
	// Rank test for the headline comparison; it stays defined when a
	// condition's dq has no spread.
	if _, err := analyzer.MannWhitneyU(table, metricDQ, labelCond,
		string(models.ConditionSingleAgent), string(models.ConditionMultiAgent)); err != nil {
		rep.warn(logger, metricDQ, "mann-whitney", err)
	}
	rep.Tests = analyzer.Results()

	if err := os.WriteFile(filepath.Join(outDir, ReportFile), []byte(analyzer.Report()), 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", ReportFile, err)
	}

	if rep.SummaryT2U, err = analyzer.ConditionSummary(table, metricT2U, labelCond); err != nil {
		return nil, fmt.Errorf("summarizing t2u: %w", err)
	}
	if rep.SummaryDQ, err = analyzer.ConditionSummary(table, metricDQ, labelCond); err != nil {
		return nil, fmt.Errorf("summarizing dq: %w", err)
	}
	if err := writeSummary(filepath.Join(outDir, SummaryT2UFile), rep.SummaryT2U); err != nil {
		return nil, err
	}
	if err := writeSummary(filepath.Join(outDir, SummaryDQFile), rep.SummaryDQ); err != nil {
		return nil, err
	}

	rep.Conditions = conditionStats(rep.Scored)
	if err := writeConditionStats(filepath.Join(outDir, ComponentsFile), rep.Conditions); err != nil {
		return nil, err
	}
	rep.Improvements = improvements(rep.Scored)

	logger.Info("analysis complete",
		"scored", len(rep.Scored),
		"tests", len(rep.Tests),
		"warnings", len(rep.Warnings),
		"output_dir", outDir)
	return rep, nil
}

func (r *Report) warn(logger *slog.Logger, metric, test string, err error) {
	logger.Warn("statistical test failed", "metric", metric, "test", test, "error", err)
	r.Warnings = append(r.Warnings, fmt.Sprintf("%s %s: %v", metric, test, err))
}

// Rescore scores every trial against groundTruth.
func Rescore(trials []models.TrialRecord, groundTruth string) []models.ScoredRecord {
	scorer := scoring.New(groundTruth)
	out := make([]models.ScoredRecord, 0, len(trials))
	for _, t := range trials {
		out = append(out, scorer.ScoreRecord(t))
	}
	return out
}

// exclude drops trials whose ID is in ids and returns the IDs it dropped.
func exclude(trials []models.TrialRecord, ids []string) ([]models.TrialRecord, []string) {
	if len(ids) == 0 {
		return trials, nil
	}
	var kept []models.TrialRecord
	var dropped []string
	for _, t := range trials {
		if slices.Contains(ids, t.TrialID) {
			dropped = append(dropped, t.TrialID)
			continue
		}
		kept = append(kept, t)
	}
	return kept, dropped
}

func toTable(scored []models.ScoredRecord) stats.Table {
	t := make(stats.Table, 0, len(scored))
	for _, s := range scored {
		t = append(t, stats.Row{
			Labels:  map[string]string{labelCond: string(s.Condition)},
			Metrics: map[string]float64{metricT2U: s.T2U, metricDQ: s.DQ},
		})
	}
	return t
}

func byCondition(scored []models.ScoredRecord) map[models.Condition][]models.ScoredRecord {
	out := make(map[models.Condition][]models.ScoredRecord)
	for _, s := range scored {
		out[s.Condition] = append(out[s.Condition], s)
	}
	return out
}

func conditionStats(scored []models.ScoredRecord) []ConditionStats {
	groups := byCondition(scored)
	var out []ConditionStats
	for _, c := range models.Conditions() {
		recs := groups[c]
		if len(recs) == 0 {
			continue
		}
		var t2u, dq, validity, specificity, correctness, actions []float64
		cs := ConditionStats{Condition: c, N: len(recs)}
		actionable := 0
		for _, r := range recs {
			t2u = append(t2u, r.T2U)
			dq = append(dq, r.DQ)
			validity = append(validity, r.Validity)
			specificity = append(specificity, r.Specificity)
			correctness = append(correctness, r.Correctness)
			actions = append(actions, float64(r.ActionCount))
			if r.DQ > actionableDQ {
				actionable++
			}
			if r.Fallback {
				cs.Fallbacks++
			}
		}
		cs.MeanT2U, cs.StdT2U = meanStd(t2u)
		cs.MeanDQ, cs.StdDQ = meanStd(dq)
		cs.MeanValidity, cs.StdValidity = meanStd(validity)
		cs.MeanSpecificity, cs.StdSpecificity = meanStd(specificity)
		cs.MeanCorrectness, cs.StdCorrectness = meanStd(correctness)
		cs.MeanActions, cs.StdActions = meanStd(actions)
		cs.ActionablePct = 100 * float64(actionable) / float64(len(recs))
		out = append(out, cs)
	}
	return out
}

// meanStd returns the mean and sample standard deviation, with NaN std
// for fewer than two values.
func meanStd(x []float64) (float64, float64) {
	if len(x) < 2 {
		return stat.Mean(x, nil), math.NaN()
	}
	return stat.MeanStdDev(x, nil)
}

func improvements(scored []models.ScoredRecord) Improvements {
	groups := byCondition(scored)
	metric := func(c models.Condition, f func(models.ScoredRecord) float64) []float64 {
		var out []float64
		for _, r := range groups[c] {
			out = append(out, f(r))
		}
		return out
	}
	t2u := func(r models.ScoredRecord) float64 { return r.T2U }
	dq := func(r models.ScoredRecord) float64 { return r.DQ }

	c1T2U := metric(models.ConditionBaseline, t2u)
	c3T2U := metric(models.ConditionMultiAgent, t2u)
	c2DQ := metric(models.ConditionSingleAgent, dq)
	c3DQ := metric(models.ConditionMultiAgent, dq)

	return Improvements{
		T2UReductionPct:  relativeChange(mean(c1T2U), mean(c1T2U)-mean(c3T2U)),
		DQImprovementPct: relativeChange(mean(c2DQ), mean(c3DQ)-mean(c2DQ)),
		CohensD:          cohensD(c3DQ, c2DQ),
	}
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

// relativeChange returns 100*delta/ref, or NaN when ref is zero or NaN.
func relativeChange(ref, delta float64) float64 {
	if ref == 0 || math.IsNaN(ref) {
		return math.NaN()
	}
	return 100 * delta / ref
}

// cohensD is the mean difference x - y over the pooled standard deviation.
// With zero pooled spread it is ±Inf for different means and 0 otherwise.
func cohensD(x, y []float64) float64 {
	n1, n2 := float64(len(x)), float64(len(y))
	if len(x) < 2 || len(y) < 2 {
		return math.NaN()
	}
	m1, v1 := stat.MeanVariance(x, nil)
	m2, v2 := stat.MeanVariance(y, nil)
	pooled := math.Sqrt(((n1-1)*v1 + (n2-1)*v2) / (n1 + n2 - 2))
	if pooled == 0 {
		switch {
		case m1 > m2:
			return math.Inf(1)
		case m1 < m2:
			return math.Inf(-1)
		default:
			return 0
		}
	}
	return (m1 - m2) / pooled
}
