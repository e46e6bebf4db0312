package results_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/spachava753/incidentbench/internal/models"
	"github.com/spachava753/incidentbench/internal/results"
)

func record(c models.Condition, seq int) models.TrialRecord {
	return models.TrialRecord{
		TrialID:   models.TrialID(c, seq),
		Condition: c,
		Sequence:  seq,
		T2U:       12.5,
		Actions:   []string{"rollback auth-service"},
		Output:    "summary",
		Timestamp: models.Timestamp{Time: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
}

func TestWriteTrial(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	s, err := results.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	rec := record(models.ConditionBaseline, 7)
	rec.Actions = nil
	if err := s.WriteTrial(rec); err != nil {
		t.Fatalf("WriteTrial failed: %v", err)
	}

	path := filepath.Join(dir, "trials", "trial_C1_007.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading trial file: %v", err)
	}
	if !strings.Contains(string(data), `"actions": []`) {
		t.Errorf("nil actions should serialise as an empty list:\n%s", data)
	}
	if !strings.Contains(string(data), "\n  \"trial_id\": \"C1_007\"") {
		t.Errorf("expected indented JSON:\n%s", data)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "trials"))
	if len(entries) != 1 {
		t.Errorf("expected only the trial file, found %d entries", len(entries))
	}
}

func TestNewStoreFailsOnFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(f, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := results.NewStore(f); err == nil {
		t.Error("expected error when results path is a file")
	}
}

func TestAggregateRoundTrip(t *testing.T) {
	s, err := results.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	run := &models.AggregateRun{
		Metadata: models.RunMetadata{
			RunID:              "run-1",
			TotalTrials:        2,
			TrialsPerCondition: 1,
			RandomSeed:         42,
			Scenario:           "auth_service_regression",
			FallbackTrials:     map[models.Condition]int{models.ConditionSingleAgent: 1},
			Timestamp:          models.Timestamp{Time: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		},
		Trials: []models.TrialRecord{
			record(models.ConditionBaseline, 0),
			record(models.ConditionSingleAgent, 0),
		},
	}
	if err := s.WriteAggregate(run); err != nil {
		t.Fatalf("WriteAggregate failed: %v", err)
	}

	got, err := s.LoadAggregate()
	if err != nil {
		t.Fatalf("LoadAggregate failed: %v", err)
	}
	if diff := cmp.Diff(run, got); diff != "" {
		t.Errorf("aggregate mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFallsBackToTrialFiles(t *testing.T) {
	s, err := results.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for _, rec := range []models.TrialRecord{
		record(models.ConditionSingleAgent, 1),
		record(models.ConditionBaseline, 10),
		record(models.ConditionSingleAgent, 0),
		record(models.ConditionBaseline, 2),
	} {
		if err := s.WriteTrial(rec); err != nil {
			t.Fatal(err)
		}
	}

	run, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var ids []string
	for _, tr := range run.Trials {
		ids = append(ids, tr.TrialID)
	}
	want := []string{"C1_002", "C1_010", "C2_000", "C2_001"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("trial order mismatch (-want +got):\n%s", diff)
	}
	if run.Metadata.TotalTrials != 4 {
		t.Errorf("expected total 4, got %d", run.Metadata.TotalTrials)
	}
}

func TestLoadEmptyDir(t *testing.T) {
	s, err := results.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestLoadLegacyTimestamp(t *testing.T) {
	dir := t.TempDir()
	legacy := `{
  "metadata": {"total_trials": 1, "trials_per_condition": 1, "random_seed": 42,
               "scenario": "auth_service_regression", "timestamp": "2025-10-01T14:03:22.123456"},
  "trials": [{"trial_id": "C1_000", "condition": "C1", "t2u": 118.2, "actions": [],
              "output": "Manual dashboard analysis (no AI assistance)", "timestamp": "2025-10-01T14:03:22"}]
}`
	if err := os.WriteFile(filepath.Join(dir, results.AggregateFile), []byte(legacy), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := results.OpenStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	run, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := time.Date(2025, 10, 1, 14, 3, 22, 123456000, time.UTC)
	if !run.Metadata.Timestamp.Equal(want) {
		t.Errorf("metadata timestamp %v, want %v", run.Metadata.Timestamp.Time, want)
	}
	if run.Trials[0].Timestamp.Second() != 22 {
		t.Errorf("unexpected trial timestamp %v", run.Trials[0].Timestamp.Time)
	}
}
