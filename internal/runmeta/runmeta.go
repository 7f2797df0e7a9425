// Package runmeta owns the per-run identity record and its merge rules.
//
// The record is merged, never overwritten: identity fields are set-once,
// trust flags only tighten, list fields only grow, and the update stamp
// and iteration counter always advance. A run is never deleted, only
// superseded by a later run that points back at it.
package runmeta

import (
	"encoding/json"
	"time"
)

// RunIDKind says where a run's identity comes from.
type RunIDKind string

const (
	// KindIssue means the run id is bound to an external issue.
	KindIssue RunIDKind = "issue"

	// KindLocal means the run id was generated locally and carries no
	// external binding (yet).
	KindLocal RunIDKind = "local"
)

// IssueBinding says when the issue binding happens.
type IssueBinding string

const (
	BindingImmediate IssueBinding = "immediate"
	BindingDeferred  IssueBinding = "deferred"
)

// MetaFileName is the metadata file name inside a run's directory.
const MetaFileName = "run_meta.json"

// Run is the per-run identity record.
type Run struct {
	RunID        string       `json:"run_id"`
	RunIDKind    RunIDKind    `json:"run_id_kind,omitempty"`
	IssueBinding IssueBinding `json:"issue_binding,omitempty"`
	IssueNumber  *int         `json:"issue_number,omitempty"`

	// Repo bindings are identity: set once, never rebound.
	RepoExpected string `json:"repo_expected,omitempty"`
	RepoActual   string `json:"repo_actual,omitempty"`

	// OpsAllowed is a trust flag on the Meet lattice.
	OpsAllowed Flag `json:"ops_allowed,omitempty"`

	CanonicalKey string   `json:"canonical_key,omitempty"`
	Aliases      []string `json:"aliases,omitempty"`

	FlowsStarted []string `json:"flows_started,omitempty"`

	// Supersedes points at the run this one replaces.
	Supersedes string `json:"supersedes,omitempty"`

	Iteration int       `json:"iteration"`
	UpdatedAt time.Time `json:"updated_at"`

	// Extra preserves unknown fields across rewrites.
	Extra map[string]json.RawMessage `json:"-"`
}

// Merge combines an incoming partial record into an existing one and
// returns the merged record. Neither input is mutated.
//
// Rules, in the order they bind:
//
//	(a) absent incoming fields pass the existing value through unchanged
//	(b) identity fields are set-once: incoming null/empty never clears,
//	    and incoming values never replace an existing non-empty value
//	(c) trust flags merge by Meet (tighten-only)
//	(d) list fields append and de-duplicate, never truncate
//	(e) UpdatedAt and Iteration always advance
func Merge(existing, incoming *Run, now time.Time) *Run {
	if existing == nil {
		existing = &Run{}
	}
	if incoming == nil {
		incoming = &Run{}
	}
	merged := *existing

	// (b) set-once identity.
	merged.RunID = setOnce(existing.RunID, incoming.RunID)
	merged.RunIDKind = RunIDKind(setOnce(string(existing.RunIDKind), string(incoming.RunIDKind)))
	merged.IssueBinding = IssueBinding(setOnce(string(existing.IssueBinding), string(incoming.IssueBinding)))
	merged.RepoExpected = setOnce(existing.RepoExpected, incoming.RepoExpected)
	merged.RepoActual = setOnce(existing.RepoActual, incoming.RepoActual)
	merged.CanonicalKey = setOnce(existing.CanonicalKey, incoming.CanonicalKey)
	merged.Supersedes = setOnce(existing.Supersedes, incoming.Supersedes)
	if existing.IssueNumber == nil && incoming.IssueNumber != nil {
		n := *incoming.IssueNumber
		merged.IssueNumber = &n
	}

	// (c) trust lattice.
	merged.OpsAllowed = Meet(existing.OpsAllowed, incoming.OpsAllowed)

	// (d) append-only lists.
	merged.Aliases = appendUnique(existing.Aliases, incoming.Aliases)
	merged.FlowsStarted = appendUnique(existing.FlowsStarted, incoming.FlowsStarted)

	// (a) unknown fields: existing extras survive; incoming extras fill
	// gaps but never replace a field a prior writer recorded.
	merged.Extra = mergeExtra(existing.Extra, incoming.Extra)

	// (e) always advance.
	merged.Iteration = existing.Iteration + 1
	merged.UpdatedAt = now
	if !existing.UpdatedAt.Before(now) {
		merged.UpdatedAt = existing.UpdatedAt.Add(time.Nanosecond)
	}

	return &merged
}

func setOnce(existing, incoming string) string {
	if existing != "" {
		return existing
	}
	return incoming
}

func appendUnique(existing, incoming []string) []string {
	out := append([]string(nil), existing...)
	seen := make(map[string]bool, len(out))
	for _, v := range out {
		seen[v] = true
	}
	for _, v := range incoming {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func mergeExtra(existing, incoming map[string]json.RawMessage) map[string]json.RawMessage {
	if len(existing) == 0 && len(incoming) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(existing)+len(incoming))
	for k, v := range incoming {
		out[k] = v
	}
	for k, v := range existing {
		out[k] = v
	}
	return out
}
