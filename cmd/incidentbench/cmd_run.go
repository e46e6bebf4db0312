package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/spachava753/incidentbench/internal/config"
	"github.com/spachava753/incidentbench/internal/executor"
	"github.com/spachava753/incidentbench/internal/metrics"
	"github.com/spachava753/incidentbench/internal/models"
	"github.com/spachava753/incidentbench/internal/service"
)

var runFlags struct {
	configPath    string
	scenarioPath  string
	resultsDir    string
	trials        int
	seed          int64
	rateLimit     int
	copilotURL    string
	multiagentURL string
	metricsAddr   string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every trial of C1, C2 and C3 and write the results",
	Long: `Run waits for the decision services, executes the configured number of
trials per condition in order C1, C2, C3 and writes one JSON file per trial
plus all_trials.json.

Settings are layered: built-in defaults, then the --config YAML file, then
environment variables (COPILOT_URL, MULTIAGENT_URL, TRIALS_PER_CONDITION,
RANDOM_SEED, RESULTS_DIR, RATE_LIMIT_CALLS_PER_MIN), then flags.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.configPath, "config", "c", "", "Path to run config YAML")
	f.StringVar(&runFlags.scenarioPath, "scenario", "", "Path to scenario TOML (default: built-in auth_service_regression)")
	f.StringVar(&runFlags.resultsDir, "results-dir", "", "Directory for trial and aggregate files")
	f.IntVarP(&runFlags.trials, "trials", "n", 0, "Trials per condition")
	f.Int64Var(&runFlags.seed, "seed", 0, "Random seed for sampled durations")
	f.IntVar(&runFlags.rateLimit, "rate-limit", 0, "Downstream calls per minute per service")
	f.StringVar(&runFlags.copilotURL, "copilot-url", "", "Base URL of the copilot service")
	f.StringVar(&runFlags.multiagentURL, "multiagent-url", "", "Base URL of the multiagent service")
	f.StringVar(&runFlags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
}

func loadRunConfig(cmd *cobra.Command) (models.RunConfig, error) {
	cfg, err := config.LoadRunConfig(runFlags.configPath)
	if err != nil {
		return cfg, err
	}
	if err := config.ApplyRunEnv(&cfg, nil); err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	if f.Changed("scenario") {
		cfg.ScenarioPath = runFlags.scenarioPath
	}
	if f.Changed("results-dir") {
		cfg.ResultsDir = runFlags.resultsDir
	}
	if f.Changed("trials") {
		cfg.TrialsPerCondition = runFlags.trials
	}
	if f.Changed("seed") {
		cfg.Seed = runFlags.seed
	}
	if f.Changed("rate-limit") {
		cfg.RateLimitPerMinute = runFlags.rateLimit
	}
	if f.Changed("copilot-url") {
		cfg.SingleAgent.URL = runFlags.copilotURL
	}
	if f.Changed("multiagent-url") {
		cfg.MultiAgent.URL = runFlags.multiagentURL
	}

	return cfg, config.ValidateRunConfig(cfg)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	sc, err := config.LoadScenarioFile(cfg.ScenarioPath)
	if err != nil {
		return fmt.Errorf("loading scenario: %w", err)
	}

	ctx := cmd.Context()
	opts := []executor.Option{}

	if runFlags.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, executor.WithMetrics(metrics.NewRunMetrics(reg)))

		mctx, cancel := context.WithCancel(ctx)
		defer cancel()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := service.ListenAndServe(mctx, runFlags.metricsAddr, mux); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	orchestrator, err := executor.NewRunOrchestrator(cfg, sc, opts...)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	run, err := orchestrator.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("run cancelled, completed trials remain in %s: %w", cfg.ResultsDir, err)
		}
		return fmt.Errorf("running evaluation: %w", err)
	}

	fmt.Printf("\nRun: %s\n", run.Metadata.RunID)
	fmt.Printf("Scenario: %s\n", run.Metadata.Scenario)
	fmt.Printf("Total trials: %d\n", run.Metadata.TotalTrials)
	for _, c := range models.Conditions() {
		fmt.Printf("%s (%s): %d trials, %d fallbacks\n",
			c, c.Description(), len(run.ByCondition(c)), run.Metadata.FallbackTrials[c])
	}
	fmt.Printf("Duration: %s\n", run.Metadata.EndedAt.Sub(run.Metadata.StartedAt).Round(time.Millisecond))
	fmt.Printf("Results: %s\n", orchestrator.Store().Dir())
	return nil
}
