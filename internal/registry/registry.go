// Package registry maintains the global, order-stable index of runs.
//
// The index is a single JSON file shared by every concurrently executing
// run, so all mutation goes through a read-modify-write transaction
// guarded by an advisory lock file plus an optimistic version check.
// Rows are never reordered, never deleted, and never fabricated for a run
// the writer only meant to update.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// IndexFileName is the registry file name under the root directory.
const IndexFileName = "index.json"

// IndexEntry is one row per run.
type IndexEntry struct {
	RunID        string    `json:"run_id"`
	CanonicalKey string    `json:"canonical_key,omitempty"`
	Aliases      []string  `json:"aliases,omitempty"`
	Status       string    `json:"status,omitempty"`
	LastFlow     string    `json:"last_flow,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Index is the registry document. Runs preserves insertion/sort order;
// Version advances on every write and guards against lost updates.
type Index struct {
	Version int          `json:"version"`
	Runs    []IndexEntry `json:"runs"`
}

// UnknownRunError reports an upsert that expected an existing row but
// found none. Surfaced as a blocker, never silently turned into a new row:
// a misrouted write must not orphan a registry entry.
type UnknownRunError struct {
	RunID string
}

func (e *UnknownRunError) Error() string {
	return fmt.Sprintf("registry: run %q not present, refusing to create row for an update", e.RunID)
}

// Registry provides transactional access to the index file.
type Registry struct {
	root string
	lock *FileLock
}

// New creates a registry over the given root directory.
func New(root string) *Registry {
	return &Registry{
		root: root,
		lock: NewFileLock(filepath.Join(root, IndexFileName+".lock")),
	}
}

func (r *Registry) path() string {
	return filepath.Join(r.root, IndexFileName)
}

// Load reads the index without taking the lock. A missing file is an
// empty index at version 0.
func (r *Registry) Load() (*Index, error) {
	data, err := os.ReadFile(r.path())
	if os.IsNotExist(err) {
		return &Index{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry load: %w", err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("registry parse: %w", err)
	}
	return &idx, nil
}

// Upsert applies one row change under the registry transaction.
//
// If a row for the run exists, only the caller-owned fields are updated in
// place: status, last_flow, updated_at, and append-only aliases. The
// canonical key is set-once. The row keeps its position.
//
// If no row exists and expectExisting is false, a new row is inserted: in
// sorted position when the existing array is sorted by run_id, appended
// otherwise. With expectExisting true, the missing row is *UnknownRunError.
func (r *Registry) Upsert(entry IndexEntry, expectExisting bool) (*Index, error) {
	if entry.RunID == "" {
		return nil, fmt.Errorf("registry upsert: empty run_id")
	}
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return nil, fmt.Errorf("registry upsert: %w", err)
	}

	if err := r.lock.Acquire(); err != nil {
		return nil, fmt.Errorf("registry upsert: %w", err)
	}
	defer r.lock.Release()

	idx, err := r.Load()
	if err != nil {
		return nil, err
	}
	readVersion := idx.Version

	pos := -1
	for i := range idx.Runs {
		if idx.Runs[i].RunID == entry.RunID {
			pos = i
			break
		}
	}

	switch {
	case pos >= 0:
		row := &idx.Runs[pos]
		row.Status = entry.Status
		row.LastFlow = entry.LastFlow
		row.UpdatedAt = entry.UpdatedAt
		row.Aliases = appendUnique(row.Aliases, entry.Aliases)
		if row.CanonicalKey == "" {
			row.CanonicalKey = entry.CanonicalKey
		}
	case expectExisting:
		return nil, &UnknownRunError{RunID: entry.RunID}
	default:
		idx.Runs = insertRow(idx.Runs, entry)
	}

	idx.Version++
	if err := r.write(idx, readVersion); err != nil {
		return nil, err
	}
	return idx, nil
}

// insertRow adds a new row. When the existing rows are sorted by run_id
// the sort order is preserved; otherwise the row is appended. Existing
// rows never move either way.
func insertRow(runs []IndexEntry, entry IndexEntry) []IndexEntry {
	if !isSorted(runs) {
		return append(runs, entry)
	}
	at := sort.Search(len(runs), func(i int) bool {
		return runs[i].RunID >= entry.RunID
	})
	runs = append(runs, IndexEntry{})
	copy(runs[at+1:], runs[at:])
	runs[at] = entry
	return runs
}

func isSorted(runs []IndexEntry) bool {
	for i := 1; i < len(runs); i++ {
		if runs[i-1].RunID > runs[i].RunID {
			return false
		}
	}
	return true
}

// write persists atomically and re-checks the version under the lock.
// The version check is belt-and-braces on top of the lock file: if some
// writer bypassed the lock, losing its update silently is worse than
// failing loudly.
func (r *Registry) write(idx *Index, readVersion int) error {
	current, err := r.Load()
	if err != nil {
		return err
	}
	if current.Version != readVersion {
		return fmt.Errorf("registry write: version moved from %d to %d during transaction", readVersion, current.Version)
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("registry write: %w", err)
	}
	tmp, err := os.CreateTemp(r.root, IndexFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("registry write: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("registry write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("registry write: %w", err)
	}
	if err := os.Rename(tmpName, r.path()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("registry write: %w", err)
	}
	return nil
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
