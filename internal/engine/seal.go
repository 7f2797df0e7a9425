package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/EffortlessMetrics/waystation/internal/artifact"
	"github.com/EffortlessMetrics/waystation/internal/canonical"
	"github.com/EffortlessMetrics/waystation/internal/extract"
	"github.com/EffortlessMetrics/waystation/internal/forensic"
	"github.com/EffortlessMetrics/waystation/internal/journal"
	"github.com/EffortlessMetrics/waystation/internal/pipeline"
	"github.com/EffortlessMetrics/waystation/internal/receipt"
	"github.com/EffortlessMetrics/waystation/internal/registry"
	"github.com/EffortlessMetrics/waystation/internal/runmeta"
)

// Seal derives a flow's receipt from the artifacts on disk and commits
// it: receipt artifact, run metadata merge, registry upsert, journal
// append. Sealing is re-runnable at any time; with unchanged artifacts it
// reproduces the same receipt apart from generated_at.
func (e *Engine) Seal(ctx context.Context, runID, flow string) (*receipt.Receipt, error) {
	rcpt, err := e.derive(runID, flow)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(rcpt, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("seal %s/%s: %w", runID, flow, err)
	}
	if err := e.store.Put(runID, flow, receipt.ArtifactName, append(data, '\n')); err != nil {
		return nil, fmt.Errorf("seal %s/%s: %w", runID, flow, err)
	}

	merged, err := e.meta.Apply(runID, &runmeta.Run{
		RunID:        runID,
		FlowsStarted: []string{flow},
	}, rcpt.GeneratedAt)
	if err != nil {
		return nil, fmt.Errorf("seal %s/%s: %w", runID, flow, err)
	}

	if _, err := e.reg.Upsert(registry.IndexEntry{
		RunID:        runID,
		CanonicalKey: merged.CanonicalKey,
		Aliases:      merged.Aliases,
		Status:       string(rcpt.Status),
		LastFlow:     flow,
		UpdatedAt:    rcpt.GeneratedAt,
	}, false); err != nil {
		return nil, fmt.Errorf("seal %s/%s: %w", runID, flow, err)
	}

	if e.journal != nil {
		rec, err := sealRecord(rcpt)
		if err != nil {
			return nil, fmt.Errorf("seal %s/%s: %w", runID, flow, err)
		}
		if err := e.journal.AppendSeal(ctx, rec); err != nil {
			return nil, fmt.Errorf("seal %s/%s: %w", runID, flow, err)
		}
	}

	e.log.Info("flow sealed",
		"run_id", runID,
		"flow", flow,
		"status", rcpt.Status,
		"action", rcpt.RecommendedAction,
		"routing", rcpt.Routing.Kind,
		"blockers", len(rcpt.Blockers))
	return rcpt, nil
}

// ReplayResult is the outcome of re-deriving a sealed flow.
type ReplayResult struct {
	RunID     string
	Flow      string
	Journaled *receipt.Receipt
	Derived   *receipt.Receipt
	Match     bool
	Reason    string
}

// Replay re-derives a flow's receipt from the artifacts on disk, without
// writing anything, and compares it against the last journaled seal. A
// divergence means the artifacts changed after sealing or determinism
// broke; either way the journaled receipt can no longer be trusted as a
// summary of what is on disk.
func (e *Engine) Replay(ctx context.Context, runID, flow string) (*ReplayResult, error) {
	if e.journal == nil {
		return nil, fmt.Errorf("replay %s/%s: no journal attached", runID, flow)
	}
	res := &ReplayResult{RunID: runID, Flow: flow}

	last, err := e.journal.LastSeal(ctx, runID, flow)
	if err != nil {
		return nil, fmt.Errorf("replay %s/%s: %w", runID, flow, err)
	}
	if last == nil {
		res.Reason = "no journaled seal for this flow"
		return res, nil
	}
	var journaled receipt.Receipt
	if err := json.Unmarshal([]byte(last.Receipt), &journaled); err != nil {
		return nil, fmt.Errorf("replay %s/%s: parse journaled receipt: %w", runID, flow, err)
	}
	res.Journaled = &journaled

	derived, err := e.derive(runID, flow)
	if err != nil {
		return nil, fmt.Errorf("replay %s/%s: %w", runID, flow, err)
	}
	res.Derived = derived

	if derived.Equivalent(&journaled) {
		res.Match = true
		return res, nil
	}
	res.Reason = "derived receipt diverges from journaled seal"
	return res, nil
}

// derive runs the pure resolve chain: gather, extract, cross-check,
// resolve. Nothing is written.
func (e *Engine) derive(runID, flow string) (*receipt.Receipt, error) {
	fl := e.def.Flow(flow)
	if fl == nil {
		return nil, fmt.Errorf("derive %s/%s: unknown flow", runID, flow)
	}

	in := receipt.Inputs{
		RunID: runID,
		Flow:  flow,
		Now:   e.clock(),
	}
	counts := make(map[string]*int)
	reasons := make(map[string]string)
	evidence := make(map[string]any)
	src := extract.NewSource(e.store, runID, flow)

	// Own artifacts: presence, then extraction plan.
	for _, st := range fl.Stations {
		for _, a := range st.Produces {
			present, err := e.store.Exists(runID, flow, a.Name)
			if err != nil {
				return receipt.Resolve(mechanical(in, err)), nil
			}
			if !present {
				evidence[flow+"/"+a.Name] = nil
				missing := receipt.MissingArtifact{
					Name: a.Name, Flow: flow, Station: st.Name, SameFlow: true,
				}
				if a.Required {
					in.MissingRequired = append(in.MissingRequired, missing)
				} else {
					in.MissingRecommended = append(in.MissingRecommended, missing)
				}
				nullCounts(a, counts, reasons, fmt.Sprintf("artifact missing: %s", a.Name))
				continue
			}

			sha, err := e.store.Hash(runID, flow, a.Name)
			if err != nil {
				return receipt.Resolve(mechanical(in, err)), nil
			}
			evidence[flow+"/"+a.Name] = sha

			if err := e.extractCounts(src, a, counts, reasons); err != nil {
				return receipt.Resolve(mechanical(in, err)), nil
			}
		}
	}

	// Needs: required inputs owned by earlier flows.
	for _, need := range fl.Needs {
		ownerFlow, ownerStation, ok := e.def.Owner(need)
		if !ok {
			return nil, fmt.Errorf("derive %s/%s: need %q not in pipeline", runID, flow, need)
		}
		present, err := e.store.Exists(runID, ownerFlow, need)
		if err != nil {
			return receipt.Resolve(mechanical(in, err)), nil
		}
		if !present {
			evidence[ownerFlow+"/"+need] = nil
			in.MissingRequired = append(in.MissingRequired, receipt.MissingArtifact{
				Name: need, Flow: ownerFlow, Station: ownerStation, SameFlow: false,
			})
			continue
		}
		sha, err := e.store.Hash(runID, ownerFlow, need)
		if err != nil {
			return receipt.Resolve(mechanical(in, err)), nil
		}
		evidence[ownerFlow+"/"+need] = sha
	}

	// Upstream gate verdicts.
	for _, gate := range fl.Gates {
		report, err := e.readGate(runID, gate)
		if err != nil {
			return receipt.Resolve(mechanical(in, err)), nil
		}
		in.Gates = append(in.Gates, report)
	}

	// Forensic cross-checks.
	var checks []forensic.Check
	for _, c := range fl.Checks {
		claim, err := e.resolveFact(src, c.Claim)
		if err != nil {
			return receipt.Resolve(mechanical(in, err)), nil
		}
		ev, err := e.resolveFact(src, c.Evidence)
		if err != nil {
			return receipt.Resolve(mechanical(in, err)), nil
		}
		checks = append(checks, forensic.Check{
			Description: c.Description,
			Claim:       claim,
			Evidence:    ev,
			Compare:     comparatorFor(c.Comparator),
		})
	}
	in.Findings = forensic.CrossCheck(checks)

	sha, err := canonical.Hash(evidence)
	if err != nil {
		return nil, fmt.Errorf("derive %s/%s: evidence hash: %w", runID, flow, err)
	}
	in.EvidenceSHA = sha
	if len(counts) > 0 {
		in.Counts = counts
	}
	if len(reasons) > 0 {
		in.CountReasons = reasons
	}

	return receipt.Resolve(in), nil
}

// mechanical marks the inputs as mechanically failed. Gathering stops at
// the first I/O failure: the rest of the evidence is unreadable by the
// same token, and the priority chain ignores it anyway.
func mechanical(in receipt.Inputs, err error) receipt.Inputs {
	in.IOFailed = true
	in.IOReason = err.Error()
	return in
}

// nullCounts records every count an artifact declares as null with the
// given reason. Used when the artifact itself is absent: the counts it
// would have produced must still appear in the receipt, as nulls.
func nullCounts(a pipeline.Artifact, counts map[string]*int, reasons map[string]string, reason string) {
	if a.Summary != nil {
		for _, k := range a.Summary.Keys {
			if k.Count == "" {
				continue
			}
			counts[k.Count] = nil
			reasons[k.Count] = reason
		}
	}
	for _, m := range a.Markers {
		counts[m.Count] = nil
		reasons[m.Count] = reason
	}
}

// extractCounts applies an artifact's extraction plan into counts and
// reasons. Every declared count lands either as a derived integer or as
// null with a reason; no key is silently skipped.
func (e *Engine) extractCounts(src *extract.Source, a pipeline.Artifact, counts map[string]*int, reasons map[string]string) error {
	if a.Summary != nil {
		section := a.Summary.Section
		if section == "" {
			section = extract.SummarySection
		}
		for _, k := range a.Summary.Keys {
			if k.Count == "" {
				continue
			}
			l, err := src.Key(a.Name, section, k.Name)
			if err != nil {
				return err
			}
			if n, ok := l.Int(); ok {
				counts[k.Count] = &n
				continue
			}
			counts[k.Count] = nil
			if l.Ok() {
				reasons[k.Count] = fmt.Sprintf("key %q in %s is not an integer: %q", k.Name, a.Name, l.Value)
			} else {
				reasons[k.Count] = l.Reason
			}
		}
	}
	for _, m := range a.Markers {
		section := m.Section
		if section == "" {
			section = pipeline.InventorySection
		}
		c, err := src.CountMarkers(a.Name, section, m.Prefix)
		if err != nil {
			return err
		}
		counts[m.Count] = c.N
		if c.Null() {
			reasons[m.Count] = c.Reason
		}
	}
	return nil
}

// readGate reads an upstream flow's receipt and reduces it to a verdict.
// A missing receipt is an unresolved gate, not an error.
func (e *Engine) readGate(runID, gateFlow string) (receipt.GateReport, error) {
	report := receipt.GateReport{Gate: gateFlow}
	data, err := e.store.Get(runID, gateFlow, receipt.ArtifactName)
	if artifact.IsNotFound(err) {
		report.Detail = "receipt not sealed"
		return report, nil
	}
	if err != nil {
		return report, err
	}
	var rcpt receipt.Receipt
	if err := json.Unmarshal(data, &rcpt); err != nil {
		report.Detail = fmt.Sprintf("receipt unparseable: %v", err)
		return report, nil
	}
	report.Resolved = true
	report.Passed = rcpt.Status == receipt.StatusVerified
	if !report.Passed {
		report.Detail = string(rcpt.Status)
		if len(rcpt.Blockers) > 0 {
			report.Detail += ": " + rcpt.Blockers[0]
		}
	}
	return report, nil
}

// resolveFact turns a declared fact reference into a forensic fact.
// Extraction nulls become null facts; only I/O failures are errors.
func (e *Engine) resolveFact(src *extract.Source, ref pipeline.FactRef) (forensic.Fact, error) {
	name := factName(ref)
	if ref.Prefix != "" {
		section := ref.Section
		if section == "" {
			section = pipeline.InventorySection
		}
		c, err := src.CountMarkers(ref.Artifact, section, ref.Prefix)
		if err != nil {
			return forensic.Fact{}, err
		}
		if n, ok := c.Value(); ok {
			return forensic.IntFact(ref.Artifact, name, n), nil
		}
		return forensic.NullFact(ref.Artifact, name, c.Reason), nil
	}

	section := ref.Section
	if section == "" {
		section = extract.SummarySection
	}
	l, err := src.Key(ref.Artifact, section, ref.Key)
	if err != nil {
		return forensic.Fact{}, err
	}
	if l.Ok() {
		return forensic.StringFact(ref.Artifact, name, l.Value), nil
	}
	return forensic.NullFact(ref.Artifact, name, l.Reason), nil
}

func factName(ref pipeline.FactRef) string {
	if ref.Key != "" {
		return ref.Key
	}
	return "count(" + ref.Prefix + ")"
}

// comparatorFor resolves a declared comparator name. int-equal compares
// numerically when both sides parse as integers and falls back to exact
// string equality otherwise, so a malformed number reads as disagreement
// rather than being coerced.
func comparatorFor(name string) forensic.Comparator {
	switch name {
	case "int-equal":
		return func(claim, evidence string) bool {
			ci, errC := strconv.Atoi(claim)
			ei, errE := strconv.Atoi(evidence)
			if errC != nil || errE != nil {
				return claim == evidence
			}
			return ci == ei
		}
	default:
		return forensic.Equal
	}
}

// sealRecord builds the journal row for a receipt. The ID is the hash of
// the seal's canonical content minus generated_at, so resealing unchanged
// inputs lands on the same row.
func sealRecord(rcpt *receipt.Receipt) (journal.SealRecord, error) {
	routing, err := canonical.Marshal(map[string]any{
		"kind":   string(rcpt.Routing.Kind),
		"target": rcpt.Routing.Target,
	})
	if err != nil {
		return journal.SealRecord{}, err
	}

	blockers := make([]any, len(rcpt.Blockers))
	for i, b := range rcpt.Blockers {
		blockers[i] = b
	}
	id, err := canonical.Hash(map[string]any{
		"run_id":             rcpt.RunID,
		"flow":               rcpt.Flow,
		"status":             string(rcpt.Status),
		"recommended_action": string(rcpt.RecommendedAction),
		"routing_kind":       string(rcpt.Routing.Kind),
		"routing_target":     rcpt.Routing.Target,
		"evidence_sha":       rcpt.EvidenceSHA,
		"blockers":           blockers,
	})
	if err != nil {
		return journal.SealRecord{}, err
	}

	receiptJSON, err := json.Marshal(rcpt)
	if err != nil {
		return journal.SealRecord{}, err
	}

	return journal.SealRecord{
		ID:                id,
		RunID:             rcpt.RunID,
		Flow:              rcpt.Flow,
		Status:            string(rcpt.Status),
		RecommendedAction: string(rcpt.RecommendedAction),
		Routing:           string(routing),
		Receipt:           string(receiptJSON),
		EvidenceSHA:       rcpt.EvidenceSHA,
		SealedAt:          rcpt.GeneratedAt,
	}, nil
}
