package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// RunIDGenerator produces run ids for local-only runs (runs not bound to
// an external issue). Implemented by UUIDv7Generator (production) and
// FixedGenerator (tests).
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable local run ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so run
// directories list in creation order. Stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns "run-<uuidv7>".
// Panics if UUID generation fails, which does not happen in practice.
func (g UUIDv7Generator) Generate() string {
	return "run-" + uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined run ids for deterministic tests.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order and
// panics when exhausted, so a test that consumes more ids than it
// declared fails loudly.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next fixed id.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic(fmt.Sprintf("FixedGenerator exhausted after %d ids", len(g.ids)))
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
