package harness

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one declarative query case: the definition to look up and
// what the engine should make of it.
type Scenario struct {
	Name   string         `yaml:"name"`
	Model  string         `yaml:"model"`
	Flavor string         `yaml:"flavor"`
	Params map[string]any `yaml:"params"`
	Expect Expectation    `yaml:"expect"`
}

// Expectation is the checked portion of a scenario. Nil fields are not
// checked, so a scenario can pin down as much or as little as it needs.
type Expectation struct {
	// Valid, when set, requires the definition to validate (or not).
	Valid *bool `yaml:"valid"`
	// IDs, when set, requires the result ids to match exactly, in order.
	IDs []int64 `yaml:"ids"`
	// Errors lists substrings that must each appear in some validation
	// error.
	Errors []string `yaml:"errors"`
}

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadScenarios reads a YAML scenario list.
func LoadScenarios(r io.Reader) ([]Scenario, error) {
	var f scenarioFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}
	for i, s := range f.Scenarios {
		if s.Name == "" {
			return nil, fmt.Errorf("scenario %d: missing name", i)
		}
		if s.Model == "" {
			return nil, fmt.Errorf("scenario %q: missing model", s.Name)
		}
	}
	return f.Scenarios, nil
}

// LoadScenarioFile reads a YAML scenario list from a file.
func LoadScenarioFile(path string) ([]Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenarios: %w", err)
	}
	defer f.Close()
	return LoadScenarios(f)
}
