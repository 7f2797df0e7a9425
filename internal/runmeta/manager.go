package runmeta

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// runKnownFields are the top-level keys this version owns in run_meta.json.
var runKnownFields = map[string]bool{
	"run_id": true, "run_id_kind": true, "issue_binding": true,
	"issue_number": true, "repo_expected": true, "repo_actual": true,
	"ops_allowed": true, "canonical_key": true, "aliases": true,
	"flows_started": true, "supersedes": true, "iteration": true,
	"updated_at": true,
}

type runAlias Run

// MarshalJSON re-attaches preserved unknown fields.
func (r *Run) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal((*runAlias)(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if runKnownFields[k] {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON stashes unknown top-level fields in Extra.
func (r *Run) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*runAlias)(r)); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k, v := range all {
		if runKnownFields[k] {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[k] = v
	}
	return nil
}

// Manager loads and merges run metadata files under a root directory.
//
// Save goes through Merge unconditionally, so no caller can overwrite a
// record wholesale; the merge rules are the only write path.
type Manager struct {
	root string
}

// NewManager creates a manager over the given root directory.
func NewManager(root string) *Manager {
	return &Manager{root: root}
}

func (m *Manager) path(runID string) string {
	return filepath.Join(m.root, runID, MetaFileName)
}

// Load reads a run's metadata. A missing file returns (nil, nil): the run
// has not been initialized, which is a normal state, not an error.
func (m *Manager) Load(runID string) (*Run, error) {
	data, err := os.ReadFile(m.path(runID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load run meta %s: %w", runID, err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parse run meta %s: %w", runID, err)
	}
	return &run, nil
}

// Apply merges incoming into the stored record and writes the result
// atomically. Returns the merged record.
func (m *Manager) Apply(runID string, incoming *Run, now time.Time) (*Run, error) {
	existing, err := m.Load(runID)
	if err != nil {
		return nil, err
	}
	merged := Merge(existing, incoming, now)
	if merged.RunID == "" {
		merged.RunID = runID
	}
	if merged.RunID != runID {
		return nil, fmt.Errorf("run meta %s: incoming record carries run_id %q", runID, merged.RunID)
	}
	if err := m.write(runID, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// write persists atomically: temp file in the run directory, then rename.
func (m *Manager) write(runID string, run *Run) error {
	dir := filepath.Join(m.root, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write run meta %s: %w", runID, err)
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("write run meta %s: %w", runID, err)
	}
	tmp, err := os.CreateTemp(dir, MetaFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("write run meta %s: %w", runID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write run meta %s: %w", runID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write run meta %s: %w", runID, err)
	}
	if err := os.Rename(tmpName, m.path(runID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write run meta %s: %w", runID, err)
	}
	return nil
}
