package harness

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/EffortlessMetrics/waystation/internal/engine"
	"github.com/EffortlessMetrics/waystation/internal/journal"
	"github.com/EffortlessMetrics/waystation/internal/pipeline"
	"github.com/EffortlessMetrics/waystation/internal/receipt"
)

// DefaultRunID is used when a scenario does not fix one.
const DefaultRunID = "test-run"

// FixedTime stamps every scenario receipt, so receipts are byte-stable
// across runs and machines.
var FixedTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// Result is the outcome of running a scenario.
type Result struct {
	Receipt  *receipt.Receipt
	Failures []string
}

// Passed returns true when every expectation held.
func (r *Result) Passed() bool {
	return len(r.Failures) == 0
}

// Run executes a scenario against the given pipeline definition.
//
// Each scenario runs in a fresh temp root with an in-memory journal and
// the fixed clock; nothing leaks between scenarios.
func Run(scenario *Scenario, def *pipeline.Definition) (*Result, error) {
	root, err := os.MkdirTemp("", "waystation-harness-*")
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}
	defer os.RemoveAll(root)

	j, err := journal.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}
	defer j.Close()

	eng := engine.New(root, def,
		engine.WithJournal(j),
		engine.WithClock(func() time.Time { return FixedTime }),
	)

	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	for _, a := range scenario.Artifacts {
		flow := a.Flow
		if flow == "" {
			flow = scenario.Flow
		}
		if err := eng.Store().Put(runID, flow, a.Name, []byte(a.Content)); err != nil {
			return nil, fmt.Errorf("harness: lay out %s/%s: %w", flow, a.Name, err)
		}
	}

	rcpt, err := eng.Seal(context.Background(), runID, scenario.Flow)
	if err != nil {
		return nil, fmt.Errorf("harness: seal: %w", err)
	}

	result := &Result{Receipt: rcpt}
	if scenario.Expect != nil {
		evaluate(scenario.Expect, rcpt, result)
	}
	return result, nil
}

func evaluate(exp *Expect, rcpt *receipt.Receipt, result *Result) {
	fail := func(format string, args ...any) {
		result.Failures = append(result.Failures, fmt.Sprintf(format, args...))
	}

	if exp.Status != "" && string(rcpt.Status) != exp.Status {
		fail("status = %s, want %s", rcpt.Status, exp.Status)
	}
	if exp.Action != "" && string(rcpt.RecommendedAction) != exp.Action {
		fail("action = %s, want %s", rcpt.RecommendedAction, exp.Action)
	}
	if exp.Routing != "" && string(rcpt.Routing.Kind) != exp.Routing {
		fail("routing = %s, want %s", rcpt.Routing.Kind, exp.Routing)
	}
	if exp.Target != "" && rcpt.Routing.Target != exp.Target {
		fail("routing target = %q, want %q", rcpt.Routing.Target, exp.Target)
	}
	if exp.NoBlockers && len(rcpt.Blockers) > 0 {
		fail("expected no blockers, got %d: %v", len(rcpt.Blockers), rcpt.Blockers)
	}
	for _, want := range exp.BlockersContain {
		found := false
		for _, b := range rcpt.Blockers {
			if strings.Contains(b, want) {
				found = true
				break
			}
		}
		if !found {
			fail("no blocker contains %q (blockers: %v)", want, rcpt.Blockers)
		}
	}
	for name, want := range exp.Counts {
		got, present := rcpt.Counts[name]
		if !present {
			fail("count %q not recorded", name)
			continue
		}
		switch {
		case want == nil && got != nil:
			fail("count %q = %d, want null", name, *got)
		case want != nil && got == nil:
			fail("count %q = null (%s), want %d", name, rcpt.CountReasons[name], *want)
		case want != nil && got != nil && *want != *got:
			fail("count %q = %d, want %d", name, *got, *want)
		}
	}
}
