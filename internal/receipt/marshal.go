package receipt

import (
	"encoding/json"
	"fmt"
	"time"
)

// ArtifactName is the receipt's artifact name within its flow directory.
const ArtifactName = "receipt.json"

type rawField = json.RawMessage

// knownFields are the top-level keys this version owns. Everything else
// round-trips untouched through the extra map.
var knownFields = map[string]bool{
	"run_id":             true,
	"flow":               true,
	"status":             true,
	"recommended_action": true,
	"routing":            true,
	"counts":             true,
	"count_reasons":      true,
	"blockers":           true,
	"concerns":           true,
	"evidence_sha":       true,
	"generated_at":       true,
}

// receiptWire mirrors Receipt for plain JSON encoding, without the
// custom-marshal recursion.
type receiptWire struct {
	RunID             string            `json:"run_id"`
	Flow              string            `json:"flow"`
	Status            Status            `json:"status"`
	RecommendedAction Action            `json:"recommended_action"`
	Routing           Routing           `json:"routing"`
	Counts            map[string]*int   `json:"counts,omitempty"`
	CountReasons      map[string]string `json:"count_reasons,omitempty"`
	Blockers          []string          `json:"blockers,omitempty"`
	Concerns          []string          `json:"concerns,omitempty"`
	EvidenceSHA       string            `json:"evidence_sha,omitempty"`
	GeneratedAt       time.Time         `json:"generated_at"`
}

// MarshalJSON emits the receipt with unknown fields re-attached, so a
// rewrite by this version never strips fields written by a newer one.
// Known fields always win over stale extras of the same name.
func (r *Receipt) MarshalJSON() ([]byte, error) {
	wire := receiptWire{
		RunID:             r.RunID,
		Flow:              r.Flow,
		Status:            r.Status,
		RecommendedAction: r.RecommendedAction,
		Routing:           r.Routing,
		Counts:            r.Counts,
		CountReasons:      r.CountReasons,
		Blockers:          r.Blockers,
		Concerns:          r.Concerns,
		EvidenceSHA:       r.EvidenceSHA,
		GeneratedAt:       r.GeneratedAt,
	}
	base, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	if len(r.extra) == 0 {
		return base, nil
	}

	var merged map[string]rawField
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.extra {
		if knownFields[k] {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON loads a receipt, stashing unknown top-level fields.
func (r *Receipt) UnmarshalJSON(data []byte) error {
	var wire receiptWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	var all map[string]rawField
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	*r = Receipt{
		RunID:             wire.RunID,
		Flow:              wire.Flow,
		Status:            wire.Status,
		RecommendedAction: wire.RecommendedAction,
		Routing:           wire.Routing,
		Counts:            wire.Counts,
		CountReasons:      wire.CountReasons,
		Blockers:          wire.Blockers,
		Concerns:          wire.Concerns,
		EvidenceSHA:       wire.EvidenceSHA,
		GeneratedAt:       wire.GeneratedAt,
	}
	for k, v := range all {
		if knownFields[k] {
			continue
		}
		if r.extra == nil {
			r.extra = make(map[string]rawField)
		}
		r.extra[k] = v
	}
	return r.validate()
}

// validate rejects receipts whose closed vocabularies carry values this
// version does not know. A free-form routing kind is a contract violation,
// not an extension point.
func (r *Receipt) validate() error {
	if r.Routing.Kind != "" && !ValidRoutingKinds[r.Routing.Kind] {
		return fmt.Errorf("receipt: unknown routing kind %q", r.Routing.Kind)
	}
	switch r.Status {
	case "", StatusVerified, StatusUnverified, StatusCannotProceed:
	default:
		return fmt.Errorf("receipt: unknown status %q", r.Status)
	}
	return nil
}

// canon returns a deterministic encoding with GeneratedAt zeroed, used by
// Equivalent. json.Marshal sorts map keys, so two receipts with the same
// content always encode identically.
func (r *Receipt) canon() (string, error) {
	clone := *r
	clone.GeneratedAt = time.Time{}
	data, err := clone.MarshalJSON()
	if err != nil {
		return "", err
	}
	var m map[string]rawField
	if err := json.Unmarshal(data, &m); err != nil {
		return "", err
	}
	out, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
