// incidentbench runs and analyzes incident-response evaluations.
//
// Usage:
//
//	incidentbench run [--config run.yaml] [--trials N] [--seed S]
//	incidentbench analyze [--results-dir results] [--exclude C2_028]
//	incidentbench serve copilot|multiagent [--addr :8000]
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	defer func() {
		signal.Stop(sigChan)
		cancel()
	}()

	go func() {
		sig := <-sigChan
		slog.Info("interrupt received, shutting down gracefully...", "signal", sig)
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		signal.Stop(sigChan)
		cancel()
		os.Exit(1)
	}
}
