package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spachava753/incidentbench/internal/analysis"
	"github.com/spachava753/incidentbench/internal/config"
)

var analyzeFlags struct {
	resultsDir   string
	outputDir    string
	scenarioPath string
	groundTruth  string
	exclude      []string
	alpha        float64
	bonferroni   bool
	markdown     bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Re-score a finished run and test the conditions for differences",
	Long: `Analyze loads all_trials.json (or the per-trial files of an interrupted
run), re-scores every trial against the scenario's ground truth and runs a
one-way ANOVA plus pairwise t-tests on time to understanding and decision
quality. CSV summaries and a Markdown report are written to --output-dir.`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.resultsDir, "results-dir", "results", "Directory containing the run's trial files")
	f.StringVarP(&analyzeFlags.outputDir, "output-dir", "o", "", "Directory for analysis outputs (default: <results-dir>/analysis)")
	f.StringVar(&analyzeFlags.scenarioPath, "scenario", "", "Scenario TOML supplying the ground truth (default: built-in)")
	f.StringVar(&analyzeFlags.groundTruth, "ground-truth", "", "Ground truth text, overriding the scenario's")
	f.StringSliceVar(&analyzeFlags.exclude, "exclude", nil, "Trial IDs to drop before scoring")
	f.Float64Var(&analyzeFlags.alpha, "alpha", 0.05, "Significance level")
	f.BoolVar(&analyzeFlags.bonferroni, "bonferroni", true, "Bonferroni-correct pairwise tests")
	f.BoolVar(&analyzeFlags.markdown, "markdown", false, "Print tables as Markdown")
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	if analyzeFlags.alpha <= 0 || analyzeFlags.alpha >= 1 {
		return fmt.Errorf("--alpha must be in (0, 1), got %g", analyzeFlags.alpha)
	}

	gt := analyzeFlags.groundTruth
	if gt == "" {
		sc, err := config.LoadScenarioFile(analyzeFlags.scenarioPath)
		if err != nil {
			return fmt.Errorf("loading scenario: %w", err)
		}
		gt = sc.GroundTruth
	}

	rep, err := analysis.Run(analysis.Options{
		ResultsDir:  analyzeFlags.resultsDir,
		OutputDir:   analyzeFlags.outputDir,
		GroundTruth: gt,
		Exclude:     analyzeFlags.exclude,
		Alpha:       analyzeFlags.alpha,
		Bonferroni:  analyzeFlags.bonferroni,
	})
	if err != nil {
		return fmt.Errorf("analyzing %s: %w", analyzeFlags.resultsDir, err)
	}

	format := analysis.ASCII
	if analyzeFlags.markdown {
		format = analysis.Markdown
	}
	fmt.Fprintln(cmd.OutOrStdout(), rep.Render(format))
	fmt.Fprintf(cmd.OutOrStdout(), "Outputs written to %s\n", rep.OutputDir)
	return nil
}
