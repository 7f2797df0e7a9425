package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/EffortlessMetrics/waystation/internal/pipeline"
)

// RunWithGolden executes a scenario and compares the sealed receipt
// against testdata/golden/{scenario.Name}.golden.
//
// Receipts are deterministic under the harness (fixed clock, fixed run
// id), so the golden file is the source of truth for the receipt an
// unchanged engine must produce. To regenerate:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, def *pipeline.Definition) *Result {
	t.Helper()

	result, err := Run(scenario, def)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	for _, f := range result.Failures {
		t.Errorf("scenario %s: %s", scenario.Name, f)
	}

	data, err := json.MarshalIndent(result.Receipt, "", "  ")
	if err != nil {
		t.Fatalf("scenario %s: marshal receipt: %v", scenario.Name, err)
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, scenario.Name, append(data, '\n'))
	return result
}
