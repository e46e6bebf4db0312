package config

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/spachava753/incidentbench/internal/models"
)

// DefaultScenarioName is the built-in incident used when no scenario file
// is configured.
const DefaultScenarioName = "auth_service_regression"

//go:embed scenarios/*.toml
var builtinScenarios embed.FS

// DefaultScenario returns the built-in auth-service regression incident.
func DefaultScenario() (models.Scenario, error) {
	sub, err := fs.Sub(builtinScenarios, "scenarios")
	if err != nil {
		return models.Scenario{}, err
	}
	return LoadScenario(sub, DefaultScenarioName+".toml")
}

// LoadScenarioFile loads a scenario from a TOML file on disk, or the
// built-in scenario when path is empty.
func LoadScenarioFile(path string) (models.Scenario, error) {
	if path == "" {
		return DefaultScenario()
	}
	return LoadScenario(os.DirFS(filepath.Dir(path)), filepath.Base(path))
}

// LoadScenario loads and parses a scenario file from the given filesystem.
func LoadScenario(fsys fs.FS, name string) (models.Scenario, error) {
	var sc models.Scenario

	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return sc, fmt.Errorf("reading %s: %w", name, err)
	}

	md, err := toml.Decode(string(data), &sc)
	if err != nil {
		return sc, fmt.Errorf("parsing %s: %w", name, err)
	}

	if !md.IsDefined("ground_truth") || sc.GroundTruth == "" {
		return sc, fmt.Errorf("%s: ground_truth is required", name)
	}
	if sc.Name == "" {
		sc.Name = trimExt(name)
	}
	if sc.Question == "" {
		sc.Question = "What is the root cause and what actions should be taken?"
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return sc, fmt.Errorf("%s: unknown keys %v", name, undecoded)
	}

	return sc, nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
