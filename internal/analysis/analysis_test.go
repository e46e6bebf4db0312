package analysis_test

import (
	"bufio"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/spachava753/incidentbench/internal/analysis"
	"github.com/spachava753/incidentbench/internal/models"
	"github.com/spachava753/incidentbench/internal/results"
)

const groundTruth = "rollback auth-service deployment to v2.3.0 verify database connection pool"

func trial(c models.Condition, seq int, t2u float64, actions ...string) models.TrialRecord {
	return models.TrialRecord{
		TrialID:   models.TrialID(c, seq),
		Condition: c,
		Sequence:  seq,
		T2U:       t2u,
		Actions:   append([]string{}, actions...),
		Timestamp: models.Now(),
	}
}

func writeRun(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	store, err := results.NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	remediation := []string{
		"Rollback auth-service deployment to v2.3.0",
		"Verify database connection pool configuration",
		"Monitor error rates for 5 minutes",
	}
	run := &models.AggregateRun{
		Metadata: models.RunMetadata{RunID: "run-1", TotalTrials: 9, TrialsPerCondition: 3},
		Trials: []models.TrialRecord{
			trial(models.ConditionBaseline, 0, 118),
			trial(models.ConditionBaseline, 1, 120),
			trial(models.ConditionBaseline, 2, 122),
			trial(models.ConditionSingleAgent, 0, 70, "Investigate recent changes", "Review system metrics"),
			trial(models.ConditionSingleAgent, 1, 80, "Rollback recent deployment", "Check system logs and metrics"),
			trial(models.ConditionSingleAgent, 2, 300, "Rollback auth-service to v2.3.0"),
			trial(models.ConditionMultiAgent, 0, 48, remediation...),
			trial(models.ConditionMultiAgent, 1, 50, remediation...),
			trial(models.ConditionMultiAgent, 2, 52, remediation...),
		},
	}
	run.Trials[5].Fallback = true
	if err := store.WriteAggregate(run); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestRun(t *testing.T) {
	dir := writeRun(t)

	rep, err := analysis.Run(analysis.Options{
		ResultsDir:  dir,
		GroundTruth: groundTruth,
		Exclude:     []string{"C2_002", "C9_999"},
		Bonferroni:  true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if diff := cmp.Diff([]string{"C2_002"}, rep.Excluded); diff != "" {
		t.Errorf("excluded mismatch (-want +got):\n%s", diff)
	}
	if len(rep.Scored) != 8 {
		t.Fatalf("expected 8 scored trials, got %d", len(rep.Scored))
	}

	// C2_000 has no specific or correct actions; C2_001 scores
	// 0.4 + 0.3*0.335 + 0.3*0.125.
	var c2 []float64
	for _, s := range rep.Scored {
		if s.Condition == models.ConditionSingleAgent {
			c2 = append(c2, s.DQ)
		}
		if s.Condition == models.ConditionBaseline && (s.DQ != 0 || s.ActionCount != 0) {
			t.Errorf("baseline trials must score zero, got %+v", s.Scores)
		}
	}
	if diff := cmp.Diff([]float64{0.4, 0.538}, c2); diff != "" {
		t.Errorf("C2 dq mismatch (-want +got):\n%s", diff)
	}

	// C1 and C3 dq are both constant, so only that pair fails.
	if len(rep.Warnings) != 1 || !strings.Contains(rep.Warnings[0], "C1 vs C3") {
		t.Errorf("expected one degenerate-variance warning, got %q", rep.Warnings)
	}
	if len(rep.Tests) != 8 {
		t.Fatalf("expected 8 test results, got %d", len(rep.Tests))
	}

	// The rank test still compares C2 with the constant C3 block:
	// U = 0, sigma^2 = 6/12 * (6 - 24/20).
	mw := rep.Tests[len(rep.Tests)-1]
	if mw.Test != "Mann-Whitney U (C2 vs C3)" || mw.Metric != "dq" {
		t.Fatalf("expected trailing Mann-Whitney result, got %+v", mw)
	}
	if mw.Statistic != 0 || math.Abs(mw.PValue-0.106583) > 1e-5 {
		t.Errorf("Mann-Whitney U = %v p = %v, want 0 and 0.106583", mw.Statistic, mw.PValue)
	}

	if got := rep.Improvements.T2UReductionPct; math.Abs(got-58.3333) > 1e-3 {
		t.Errorf("t2u reduction %v, want 58.333", got)
	}
	if got := rep.Improvements.DQImprovementPct; !(got > 0) {
		t.Errorf("expected positive dq improvement, got %v", got)
	}

	for _, c := range rep.Conditions {
		if c.Condition == models.ConditionMultiAgent && (c.ActionablePct != 100 || c.N != 3) {
			t.Errorf("expected every C3 trial actionable, got %+v", c)
		}
		if c.Condition == models.ConditionSingleAgent && (c.N != 2 || c.Fallbacks != 0) {
			t.Errorf("exclusion should drop the C2 fallback trial, got %+v", c)
		}
		if c.Condition == models.ConditionMultiAgent {
			// (1 + 0.67 + 0) / 3 per trial, identical across trials.
			if math.Abs(c.MeanValidity-1) > 1e-9 || math.Abs(c.StdValidity) > 1e-9 ||
				math.Abs(c.MeanSpecificity-0.5567) > 1e-9 || math.Abs(c.StdSpecificity) > 1e-9 {
				t.Errorf("unexpected C3 components %+v", c)
			}
		}
		if c.Condition == models.ConditionBaseline && (c.MeanValidity != 0 || c.MeanCorrectness != 0) {
			t.Errorf("baseline components must be zero, got %+v", c)
		}
	}

	out := filepath.Join(dir, "analysis")
	for _, name := range []string{
		analysis.RescoredFile,
		analysis.ReportFile,
		analysis.SummaryT2UFile,
		analysis.SummaryDQFile,
		analysis.ComponentsFile,
	} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}

	if got := firstLine(t, filepath.Join(out, analysis.RescoredFile)); got != "trial_id,condition,t2u,dq,validity,specificity,correctness,action_count,fallback" {
		t.Errorf("unexpected rescored header %q", got)
	}
	if got := firstLine(t, filepath.Join(out, analysis.SummaryT2UFile)); got != "Condition,N,Mean,Std,CI_95_Lower,CI_95_Upper,Median,Min,Max" {
		t.Errorf("unexpected summary header %q", got)
	}

	wantComponents := "Condition,N,Mean_T2U,Std_T2U,Mean_DQ,Std_DQ,Mean_Validity,Std_Validity," +
		"Mean_Specificity,Std_Specificity,Mean_Correctness,Std_Correctness,Mean_Actions,Std_Actions,Actionable_Pct,Fallbacks"
	if got := firstLine(t, filepath.Join(out, analysis.ComponentsFile)); got != wantComponents {
		t.Errorf("unexpected components header %q", got)
	}

	md, err := os.ReadFile(filepath.Join(out, analysis.ReportFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(md), "# Statistical Analysis Report") || !strings.Contains(string(md), "Bonferroni corrected") ||
		!strings.Contains(string(md), "## Mann-Whitney U (C2 vs C3)") {
		t.Errorf("unexpected report:\n%s", md)
	}
}

func TestRender(t *testing.T) {
	rep, err := analysis.Run(analysis.Options{
		ResultsDir:  writeRun(t),
		OutputDir:   t.TempDir(),
		GroundTruth: groundTruth,
	})
	if err != nil {
		t.Fatal(err)
	}

	ascii := rep.Render(analysis.ASCII)
	for _, want := range []string{"C1 (Baseline)", "C3 (Multi-Agent)", "T2U reduction (C3 vs C1): 58.3%", "One-Way ANOVA"} {
		if !strings.Contains(ascii, want) {
			t.Errorf("ascii render missing %q:\n%s", want, ascii)
		}
	}

	md := rep.Render(analysis.Markdown)
	if !strings.Contains(md, "| Condition |") {
		t.Errorf("expected markdown table:\n%s", md)
	}
}

func TestRunRequiresGroundTruth(t *testing.T) {
	if _, err := analysis.Run(analysis.Options{ResultsDir: t.TempDir()}); err == nil {
		t.Error("expected error without ground truth")
	}
}

func TestRunMissingResults(t *testing.T) {
	if _, err := analysis.Run(analysis.Options{ResultsDir: t.TempDir(), GroundTruth: groundTruth}); err == nil {
		t.Error("expected error for empty results directory")
	}
}

func firstLine(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	s.Scan()
	return s.Text()
}
