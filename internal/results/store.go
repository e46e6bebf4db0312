// Package results persists trial records and aggregate runs as JSON files.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spachava753/incidentbench/internal/models"
)

const (
	// AggregateFile is the run-level artifact written after C3 completes.
	AggregateFile = "all_trials.json"
	trialsDir     = "trials"
)

// Store writes and reads the files of one results directory.
type Store struct {
	dir string
}

// NewStore creates dir and its trials/ subdirectory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, trialsDir), 0755); err != nil {
		return nil, fmt.Errorf("creating results directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// OpenStore opens an existing results directory for reading.
func OpenStore(dir string) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening results directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("results path %s is not a directory", dir)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the results directory.
func (s *Store) Dir() string {
	return s.dir
}

// TrialPath returns the file a trial record is written to.
func (s *Store) TrialPath(trialID string) string {
	return filepath.Join(s.dir, trialsDir, "trial_"+trialID+".json")
}

// WriteTrial persists one trial record.
func (s *Store) WriteTrial(rec models.TrialRecord) error {
	if rec.Actions == nil {
		rec.Actions = []string{}
	}
	if err := writeJSON(s.TrialPath(rec.TrialID), rec); err != nil {
		return fmt.Errorf("writing trial %s: %w", rec.TrialID, err)
	}
	return nil
}

// WriteAggregate persists the aggregate run.
func (s *Store) WriteAggregate(run *models.AggregateRun) error {
	if err := writeJSON(filepath.Join(s.dir, AggregateFile), run); err != nil {
		return fmt.Errorf("writing aggregate: %w", err)
	}
	return nil
}

// LoadAggregate reads all_trials.json. The returned error wraps
// fs.ErrNotExist when the run never finalized.
func (s *Store) LoadAggregate() (*models.AggregateRun, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, AggregateFile))
	if err != nil {
		return nil, fmt.Errorf("reading aggregate: %w", err)
	}

	var run models.AggregateRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parsing aggregate: %w", err)
	}
	return &run, nil
}

// LoadTrials reads every per-trial file, ordered by condition then
// sequence. It is used to recover a run that never wrote its aggregate.
func (s *Store) LoadTrials() ([]models.TrialRecord, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, trialsDir, "trial_*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing trial files: %w", err)
	}

	trials := make([]models.TrialRecord, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", filepath.Base(p), err)
		}
		var rec models.TrialRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", filepath.Base(p), err)
		}
		trials = append(trials, rec)
	}

	slices.SortFunc(trials, func(a, b models.TrialRecord) int {
		if c := strings.Compare(string(a.Condition), string(b.Condition)); c != 0 {
			return c
		}
		return a.Sequence - b.Sequence
	})
	return trials, nil
}

// Load returns the aggregate run, or one rebuilt from trial files when the
// aggregate is missing.
func (s *Store) Load() (*models.AggregateRun, error) {
	run, err := s.LoadAggregate()
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	trials, err := s.LoadTrials()
	if err != nil {
		return nil, err
	}
	if len(trials) == 0 {
		return nil, fmt.Errorf("no %s or trial files in %s: %w", AggregateFile, s.dir, fs.ErrNotExist)
	}
	return &models.AggregateRun{
		Metadata: models.RunMetadata{TotalTrials: len(trials)},
		Trials:   trials,
	}, nil
}

// writeJSON writes v indented to a temporary file and renames it into
// place so readers never observe a partial file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
