package receipt

import (
	"fmt"
	"time"

	"github.com/EffortlessMetrics/waystation/internal/forensic"
)

// EnvFixTarget is the routing target for mechanical failures. The
// supervisor node it names repairs the environment, not the work.
const EnvFixTarget = "environment-fix"

// MissingArtifact identifies a required or recommended artifact that was
// not found, together with where it comes from. SameFlow decides RERUN
// (rerun the producing station in this flow) versus BOUNCE (go back to an
// earlier flow).
type MissingArtifact struct {
	Name     string
	Flow     string
	Station  string
	SameFlow bool
}

// GateReport is an upstream gate's verdict, extracted from its receipt.
// Passed=false with a resolved report means the gate ran and said no;
// Resolved=false means the gate's verdict could not be read at all.
type GateReport struct {
	Gate     string
	Resolved bool
	Passed   bool
	Detail   string
}

// Inputs is everything the resolver needs. Resolve is a pure function of
// this struct plus the clock; stations never hand it pre-judged statuses.
type Inputs struct {
	RunID string
	Flow  string

	// IOFailed marks a mechanical failure. IOReason says what broke.
	IOFailed bool
	IOReason string

	// MissingRequired are required artifacts that are absent.
	MissingRequired []MissingArtifact

	// MissingRecommended are dependent artifacts whose absence degrades
	// verification without blocking it mechanically.
	MissingRecommended []MissingArtifact

	// Findings is the forensic cross-check result.
	Findings forensic.Findings

	// Gates are upstream gate verdicts.
	Gates []GateReport

	// Counts and CountReasons pass through to the receipt untouched.
	Counts       map[string]*int
	CountReasons map[string]string

	// EvidenceSHA fingerprints the inputs the receipt was derived from.
	EvidenceSHA string

	// Concerns are non-blocking observations to carry on the receipt.
	Concerns []string

	// Now stamps GeneratedAt; zero means time.Now().UTC().
	Now time.Time
}

// Resolve turns resolver inputs into the three-axis verdict.
//
// The branch order is a strict priority chain and no branch may be
// skipped: mechanical failure outranks missing work, missing work outranks
// contradiction, contradiction outranks degraded verification, and only a
// clean pass through all of them is VERIFIED.
func Resolve(in Inputs) *Receipt {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	r := &Receipt{
		RunID:        in.RunID,
		Flow:         in.Flow,
		Counts:       in.Counts,
		CountReasons: in.CountReasons,
		Concerns:     append([]string(nil), in.Concerns...),
		EvidenceSHA:  in.EvidenceSHA,
		GeneratedAt:  now,
	}

	// 1. Mechanical failure. The only branch that may fire before anything
	// about the domain work is known.
	if in.IOFailed {
		r.Status = StatusCannotProceed
		r.RecommendedAction = ActionFixEnv
		r.Routing = Routing{Kind: RouteInjectNodes, Target: EnvFixTarget}
		reason := in.IOReason
		if reason == "" {
			reason = "mechanical failure with no recorded reason"
		}
		r.Blockers = []string{reason}
		return r
	}

	// 2. Required artifacts missing. BOUNCE when any owner is an earlier
	// flow (the run has to go back further than a rerun reaches).
	if len(in.MissingRequired) > 0 {
		r.Status = StatusUnverified
		bounce := false
		target := ""
		for _, m := range in.MissingRequired {
			r.Blockers = append(r.Blockers, fmt.Sprintf(
				"required artifact %s missing (produced by %s in flow %s)",
				m.Name, m.Station, m.Flow))
			if !m.SameFlow {
				bounce = true
				if target == "" {
					target = m.Station
				}
			}
		}
		if bounce {
			r.RecommendedAction = ActionBounce
			r.Routing = Routing{Kind: RouteDetour, Target: target}
			return r
		}
		r.RecommendedAction = ActionRerun
		r.Routing = Routing{Kind: RouteInjectFlow, Target: in.MissingRequired[0].Station}
		return r
	}

	// 3. Forensic mismatches. Recorded as blockers, never silently
	// resolved in either direction; the run continues so a human or the
	// supervisor decides.
	if len(in.Findings.Mismatches) > 0 {
		r.Status = StatusUnverified
		r.RecommendedAction = ActionRerun
		r.Routing = Routing{Kind: RouteContinue}
		for _, m := range in.Findings.Mismatches {
			r.Blockers = append(r.Blockers, m.String())
		}
		return r
	}

	// 4. Degraded verification: missing recommended artifacts, checks
	// starved of evidence, or an upstream gate incomplete/negative.
	if len(in.MissingRecommended) > 0 || len(in.Findings.Insufficient) > 0 || gateBlocked(in.Gates) {
		r.Status = StatusUnverified
		r.RecommendedAction = ActionRerun
		r.Routing = Routing{Kind: RouteContinue}
		if len(in.MissingRecommended) > 0 {
			m := in.MissingRecommended[0]
			r.Routing = Routing{Kind: RouteInjectFlow, Target: m.Station}
		}
		for _, m := range in.MissingRecommended {
			r.Blockers = append(r.Blockers, fmt.Sprintf(
				"artifact %s missing (produced by %s in flow %s)", m.Name, m.Station, m.Flow))
		}
		for _, i := range in.Findings.Insufficient {
			r.Blockers = append(r.Blockers, i.String())
		}
		for _, g := range in.Gates {
			switch {
			case !g.Resolved:
				r.Blockers = append(r.Blockers, fmt.Sprintf("gate %s verdict unreadable: %s", g.Gate, g.Detail))
			case !g.Passed:
				r.Blockers = append(r.Blockers, fmt.Sprintf("gate %s reported negative: %s", g.Gate, g.Detail))
			}
		}
		if len(r.Blockers) == 0 {
			// Contract: UNVERIFIED never ships without an explanation.
			r.Blockers = []string{"verification incomplete with no recorded cause"}
		}
		return r
	}

	// 5. Clean pass.
	r.Status = StatusVerified
	r.RecommendedAction = ActionProceed
	r.Routing = Routing{Kind: RouteContinue}
	return r
}

func gateBlocked(gates []GateReport) bool {
	for _, g := range gates {
		if !g.Resolved || !g.Passed {
			return true
		}
	}
	return false
}
