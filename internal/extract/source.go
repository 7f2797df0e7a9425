package extract

import (
	"fmt"

	"github.com/EffortlessMetrics/waystation/internal/artifact"
)

// Source reads artifacts from a store and applies anchored extraction to
// them, folding the artifact-missing case into the null taxonomy.
//
// I/O failures are distinct from null: null means "nothing to extract",
// an error means "the machine broke". Callers route the two differently.
type Source struct {
	store *artifact.Store
	runID string
	flow  string
}

// NewSource binds a store to one run/flow.
func NewSource(store *artifact.Store, runID, flow string) *Source {
	return &Source{store: store, runID: runID, flow: flow}
}

// Key extracts an anchored key from a named artifact.
// A missing artifact yields a section-missing-grade null with reason
// "artifact missing"; it is not an error.
func (s *Source) Key(name, section, key string) (Lookup, error) {
	doc, err := s.store.Get(s.runID, s.flow, name)
	if artifact.IsNotFound(err) {
		return Lookup{
			Outcome: LookupSectionMissing,
			Reason:  fmt.Sprintf("artifact missing: %s", name),
		}, nil
	}
	if err != nil {
		return Lookup{}, err
	}
	return Key(string(doc), section, key), nil
}

// CountMarkers counts marker lines in a named artifact's section.
// A missing artifact yields a null count with reason "artifact missing".
func (s *Source) CountMarkers(name, section, prefix string) (Count, error) {
	doc, err := s.store.Get(s.runID, s.flow, name)
	if artifact.IsNotFound(err) {
		return NullCount(fmt.Sprintf("artifact missing: %s", name)), nil
	}
	if err != nil {
		return Count{}, err
	}
	return CountMarkers(string(doc), section, prefix), nil
}
