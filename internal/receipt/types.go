// Package receipt defines the sealed summary of a flow and the resolver
// that derives it.
//
// A receipt answers three independent questions: what is the state of the
// work (Status), what should happen next (Action), and where should the
// run go (Routing). The three axes are never collapsed into one string.
package receipt

import (
	"time"
)

// Status is the verified-ness axis.
type Status string

const (
	// StatusVerified means every required artifact is present, every
	// cross-check ran clean, and no gate reported negative.
	StatusVerified Status = "VERIFIED"

	// StatusUnverified means the domain work is incomplete or contradicted.
	// Always actionable: an UNVERIFIED receipt carries at least one blocker.
	StatusUnverified Status = "UNVERIFIED"

	// StatusCannotProceed means the machinery itself failed (I/O,
	// permissions, tooling). Categorically different from UNVERIFIED.
	StatusCannotProceed Status = "CANNOT_PROCEED"
)

// Action is the recommended next step.
type Action string

const (
	ActionProceed Action = "PROCEED"
	ActionRerun   Action = "RERUN"
	ActionBounce  Action = "BOUNCE"
	ActionFixEnv  Action = "FIX_ENV"
)

// RoutingKind is the closed set of routing decisions.
type RoutingKind string

const (
	RouteContinue    RoutingKind = "CONTINUE"
	RouteDetour      RoutingKind = "DETOUR"
	RouteInjectFlow  RoutingKind = "INJECT_FLOW"
	RouteInjectNodes RoutingKind = "INJECT_NODES"
	RouteExtendGraph RoutingKind = "EXTEND_GRAPH"
)

// ValidRoutingKinds is the closed routing vocabulary. Anything else in a
// stored receipt is a contract violation, not a new routing mode.
var ValidRoutingKinds = map[RoutingKind]bool{
	RouteContinue:    true,
	RouteDetour:      true,
	RouteInjectFlow:  true,
	RouteInjectNodes: true,
	RouteExtendGraph: true,
}

// Routing is a tagged routing decision with an optional target descriptor.
// Never a free-form string.
type Routing struct {
	Kind   RoutingKind `json:"kind"`
	Target string      `json:"target,omitempty"`
}

// Receipt is the canonical summary artifact of a flow.
//
// Counts values are either mechanically derived integers or null, never
// invented. CountReasons records why a count is null, keyed by count name.
type Receipt struct {
	RunID             string          `json:"run_id"`
	Flow              string          `json:"flow"`
	Status            Status          `json:"status"`
	RecommendedAction Action          `json:"recommended_action"`
	Routing           Routing         `json:"routing"`
	Counts            map[string]*int `json:"counts,omitempty"`
	CountReasons      map[string]string `json:"count_reasons,omitempty"`
	Blockers          []string        `json:"blockers,omitempty"`
	Concerns          []string        `json:"concerns,omitempty"`
	EvidenceSHA       string          `json:"evidence_sha,omitempty"`
	GeneratedAt       time.Time       `json:"generated_at"`

	// extra preserves unknown top-level JSON fields across load/rewrite
	// so older binaries never strip fields written by newer ones.
	extra map[string]rawField
}

// Terminal returns true when the receipt ends the flow's forward progress
// for this invocation (anything but a clean pass).
func (r *Receipt) Terminal() bool {
	return r.Status != StatusVerified
}

// Equivalent compares two receipts ignoring GeneratedAt. This is the
// idempotency relation: rerunning a seal with unchanged inputs must yield
// an equivalent receipt.
func (r *Receipt) Equivalent(other *Receipt) bool {
	a, b := *r, *other
	a.GeneratedAt, b.GeneratedAt = time.Time{}, time.Time{}
	aj, errA := a.canon()
	bj, errB := b.canon()
	if errA != nil || errB != nil {
		return false
	}
	return aj == bj
}
