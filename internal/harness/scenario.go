// Package harness provides a conformance harness for the sealing engine.
//
// A scenario lays out artifacts under a fresh run root, seals one flow,
// and asserts on the resulting receipt. Scenarios run with a fixed clock
// and a fixed run id, so the receipt is fully deterministic and can be
// compared against a golden file.
package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one sealing conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario; the golden file shares it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID fixes the run id; defaults to "test-run".
	RunID string `yaml:"run_id,omitempty"`

	// Flow is the flow to seal.
	Flow string `yaml:"flow"`

	// Artifacts are written to the run root before sealing.
	Artifacts []ArtifactFixture `yaml:"artifacts,omitempty"`

	// Expect asserts on the sealed receipt. Nil means golden-only.
	Expect *Expect `yaml:"expect,omitempty"`
}

// ArtifactFixture is one artifact to lay out before sealing.
type ArtifactFixture struct {
	// Flow the artifact belongs to; defaults to the scenario's flow.
	Flow string `yaml:"flow,omitempty"`

	Name    string `yaml:"name"`
	Content string `yaml:"content"`
}

// Expect asserts on receipt fields. Zero-valued fields are not checked,
// except Blockers semantics: BlockersContain is substring matching and
// NoBlockers asserts emptiness.
type Expect struct {
	Status  string `yaml:"status,omitempty"`
	Action  string `yaml:"action,omitempty"`
	Routing string `yaml:"routing,omitempty"`
	Target  string `yaml:"target,omitempty"`

	// BlockersContain requires each substring to appear in some blocker.
	BlockersContain []string `yaml:"blockers_contain,omitempty"`

	// NoBlockers asserts the receipt carries no blockers.
	NoBlockers bool `yaml:"no_blockers,omitempty"`

	// Counts asserts count values; use ~ (null) for expected-null.
	Counts map[string]*int `yaml:"counts,omitempty"`
}

// LoadScenario reads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s: missing name", path)
	}
	if s.Flow == "" {
		return nil, fmt.Errorf("scenario %s: missing flow", path)
	}
	return &s, nil
}
