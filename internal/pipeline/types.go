// Package pipeline loads and validates the flow/station graph that drives
// sealing.
//
// The graph is declared in CUE, not code: which stations make up each
// flow, which artifacts each station owns, what gets extracted from each
// artifact, and which claims are cross-checked against which evidence.
// The definition is load-bearing for routing — deciding RERUN versus
// BOUNCE requires knowing which flow owns a missing artifact.
package pipeline

// Flow names form a closed set in canonical pipeline order.
const (
	FlowSignal = "signal"
	FlowPlan   = "plan"
	FlowBuild  = "build"
	FlowGate   = "gate"
	FlowDeploy = "deploy"
	FlowWisdom = "wisdom"
)

// CanonicalFlowOrder is the full pipeline in execution order.
var CanonicalFlowOrder = []string{
	FlowSignal, FlowPlan, FlowBuild, FlowGate, FlowDeploy, FlowWisdom,
}

// FlowRank returns a flow's position in the canonical order, or -1.
func FlowRank(name string) int {
	for i, f := range CanonicalFlowOrder {
		if f == name {
			return i
		}
	}
	return -1
}

// Definition is the compiled pipeline graph.
type Definition struct {
	Flows []Flow `json:"flows"`
}

// Flow is one named phase with its ordered stations and cross-checks.
type Flow struct {
	Name     string    `json:"name"`
	Stations []Station `json:"stations"`

	// Needs are artifacts produced by earlier flows that this flow
	// requires as inputs. A missing need routes BOUNCE/DETOUR back to
	// the owning station rather than RERUN within this flow.
	Needs []string `json:"needs,omitempty"`

	// Checks are the forensic triples sealed with this flow.
	Checks []Check `json:"checks,omitempty"`

	// Gates name earlier flows whose receipts must report VERIFIED
	// before this flow can seal clean.
	Gates []string `json:"gates,omitempty"`
}

// Station is one unit of work and the artifacts it owns. Exactly one
// station owns any given artifact name within a pipeline.
type Station struct {
	Name     string     `json:"name"`
	Produces []Artifact `json:"produces"`
}

// Artifact declares a station output and its extraction plan.
type Artifact struct {
	Name string `json:"name"`

	// Required artifacts block verification when absent; the rest only
	// degrade it.
	Required bool `json:"required,omitempty"`

	// Summary declares anchored keys to extract from the artifact's
	// machine summary section.
	Summary *Summary `json:"summary,omitempty"`

	// Markers declare inventory marker lines to count.
	Markers []Marker `json:"markers,omitempty"`
}

// Summary is an anchored-extraction plan for one bounded section.
type Summary struct {
	// Section is the section name; empty means the conventional
	// machine summary section.
	Section string `json:"section,omitempty"`

	Keys []Key `json:"keys"`
}

// Key is one anchored key to extract.
type Key struct {
	Name string `json:"name"`

	// Count, when set, records the key's integer value in the receipt
	// counts under this name. Non-integer values become null, never a
	// coerced number.
	Count string `json:"count,omitempty"`
}

// Marker is one inventory marker family to count mechanically.
type Marker struct {
	// Section bounds the count; empty means the conventional inventory
	// section.
	Section string `json:"section,omitempty"`

	// Prefix is the fixed, never-renamed line prefix.
	Prefix string `json:"prefix"`

	// Count names the receipt count field the total lands in.
	Count string `json:"count"`
}

// FactRef points at one extractable fact for cross-checking.
type FactRef struct {
	Artifact string `json:"artifact"`
	Section  string `json:"section,omitempty"`

	// Exactly one of Key / Prefix is set: anchored key lookup or marker
	// count.
	Key    string `json:"key,omitempty"`
	Prefix string `json:"prefix,omitempty"`
}

// Check is one declared forensic triple.
type Check struct {
	Description string  `json:"description"`
	Claim       FactRef `json:"claim"`
	Evidence    FactRef `json:"evidence"`

	// Comparator names a registered comparator; empty means "equal".
	Comparator string `json:"comparator,omitempty"`
}

// InventorySection is the conventional section holding marker lines.
const InventorySection = "INVENTORY"

// Flow returns the named flow, or nil.
func (d *Definition) Flow(name string) *Flow {
	for i := range d.Flows {
		if d.Flows[i].Name == name {
			return &d.Flows[i]
		}
	}
	return nil
}

// Owner locates the station and flow that own an artifact name.
func (d *Definition) Owner(artifactName string) (flow, station string, ok bool) {
	for _, f := range d.Flows {
		for _, s := range f.Stations {
			for _, a := range s.Produces {
				if a.Name == artifactName {
					return f.Name, s.Name, true
				}
			}
		}
	}
	return "", "", false
}

// Artifacts returns every artifact declared in a flow, in station order.
func (f *Flow) Artifacts() []Artifact {
	var out []Artifact
	for _, s := range f.Stations {
		out = append(out, s.Produces...)
	}
	return out
}

// StationFor returns the station owning an artifact within this flow.
func (f *Flow) StationFor(artifactName string) (string, bool) {
	for _, s := range f.Stations {
		for _, a := range s.Produces {
			if a.Name == artifactName {
				return s.Name, true
			}
		}
	}
	return "", false
}
