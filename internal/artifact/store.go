// Package artifact provides the filesystem-backed blob store used by every
// station. Artifacts live at <root>/<run_id>/<flow>/<name> and are written
// atomically so a crash mid-write never exposes a partial artifact to a
// later reader.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store is a per-run, per-flow key-value store of text/JSON blobs.
//
// Two error categories matter downstream and must never be conflated:
//   - NotFoundError: the artifact was never written (workflow incomplete)
//   - IOError: the filesystem itself failed (mechanical failure)
//
// Thread-safety: Store is stateless apart from the root path and safe for
// concurrent use across runs; within one run, stations execute sequentially.
type Store struct {
	root string
}

// New creates a store rooted at the given directory.
// The directory is created on first Put, not here.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns the filesystem path for an artifact without touching disk.
func (s *Store) Path(runID, flow, name string) string {
	return filepath.Join(s.root, runID, flow, name)
}

// RunDir returns the directory owned by a run.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.root, runID)
}

// Put writes an artifact atomically (write-temp-then-rename).
//
// The temp file is created in the destination directory so the rename is
// guaranteed to stay on one filesystem. A crash between write and rename
// leaves only a *.tmp file, which no reader ever looks at.
func (s *Store) Put(runID, flow, name string, data []byte) error {
	if err := validateName(runID, flow, name); err != nil {
		return err
	}
	dir := filepath.Join(s.root, runID, flow)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "put", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return &IOError{Op: "put", Path: dir, Err: err}
	}
	tmpName := tmp.Name()
	// Any failure past this point must not leave the temp file behind.
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return &IOError{Op: "put", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return &IOError{Op: "put", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &IOError{Op: "put", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		cleanup()
		return &IOError{Op: "put", Path: filepath.Join(dir, name), Err: err}
	}
	return nil
}

// Get reads an artifact.
//
// A missing artifact returns *NotFoundError; any other failure returns
// *IOError. Callers route the two to different receipt statuses, so Get
// never collapses them into a generic error.
func (s *Store) Get(runID, flow, name string) ([]byte, error) {
	if err := validateName(runID, flow, name); err != nil {
		return nil, err
	}
	path := s.Path(runID, flow, name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID, Flow: flow, Name: name}
	}
	if err != nil {
		return nil, &IOError{Op: "get", Path: path, Err: err}
	}
	return data, nil
}

// Exists reports whether an artifact is present.
// An I/O failure (not plain absence) is returned as *IOError.
func (s *Store) Exists(runID, flow, name string) (bool, error) {
	if err := validateName(runID, flow, name); err != nil {
		return false, err
	}
	path := s.Path(runID, flow, name)
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &IOError{Op: "exists", Path: path, Err: err}
}

// Hash returns the hex sha256 of an artifact's content.
// Missing artifacts surface as *NotFoundError, same as Get.
func (s *Store) Hash(runID, flow, name string) (string, error) {
	data, err := s.Get(runID, flow, name)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// List returns the artifact names present for a run/flow, sorted.
// A flow directory that does not exist yet yields an empty list, not an
// error: no station has written there.
func (s *Store) List(runID, flow string) ([]string, error) {
	dir := filepath.Join(s.root, runID, flow)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &IOError{Op: "list", Path: dir, Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// validateName rejects path components that would escape the store root.
func validateName(parts ...string) error {
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("artifact: empty path component")
		}
		if p != filepath.Base(p) || p == "." || p == ".." {
			return fmt.Errorf("artifact: invalid path component %q", p)
		}
	}
	return nil
}
