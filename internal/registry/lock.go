package registry

import (
	"fmt"
	"os"
	"time"
)

// Lock tuning. Acquisition polls because the contention window is a
// single read-modify-write of a small JSON file; anything still holding
// the lock past StaleAfter is presumed crashed and taken over.
const (
	acquireTimeout = 10 * time.Second
	pollInterval   = 25 * time.Millisecond

	// StaleAfter bounds how long a crashed writer can wedge the registry.
	StaleAfter = 30 * time.Second
)

// FileLock is an advisory lock backed by an O_EXCL-created lock file.
// It serializes registry transactions across processes on one host.
type FileLock struct {
	path string
}

// NewFileLock creates a lock at the given path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Acquire takes the lock, polling until acquireTimeout. A lock file older
// than StaleAfter is removed and re-contended rather than honored, so a
// crashed holder cannot block every later writer forever.
func (l *FileLock) Acquire() error {
	deadline := time.Now().Add(acquireTimeout)
	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "pid=%d\n", os.Getpid())
			return f.Close()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("lock %s: %w", l.path, err)
		}
		if info, statErr := os.Stat(l.path); statErr == nil {
			if time.Since(info.ModTime()) > StaleAfter {
				// Best effort: another contender may remove it first.
				_ = os.Remove(l.path)
				continue
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("lock %s: timed out after %s", l.path, acquireTimeout)
		}
		time.Sleep(pollInterval)
	}
}

// Release drops the lock. Releasing a lock that is already gone is not an
// error; a stale takeover may have removed it.
func (l *FileLock) Release() {
	_ = os.Remove(l.path)
}
