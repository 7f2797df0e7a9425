// Package engine wires the sealing contract together: it gathers a flow's
// artifacts, extracts facts, cross-checks claims against evidence,
// resolves the three-axis receipt, and commits the result to the run's
// metadata, the registry, and the journal.
//
// Everything here is a pure function of the artifacts on disk plus a
// fresh timestamp, so rerunning the chain with unchanged inputs
// reproduces the same receipt. Crash-safety comes from atomic artifact
// writes and the idempotent journal, not from any recovery protocol.
package engine

import (
	"io"
	"log/slog"
	"time"

	"github.com/EffortlessMetrics/waystation/internal/artifact"
	"github.com/EffortlessMetrics/waystation/internal/journal"
	"github.com/EffortlessMetrics/waystation/internal/pipeline"
	"github.com/EffortlessMetrics/waystation/internal/registry"
	"github.com/EffortlessMetrics/waystation/internal/runmeta"
)

// Engine orchestrates one root directory of runs.
//
// Concurrency model: single active station per run; runs own disjoint
// subdirectories, and the only shared mutable resource is the registry,
// which serializes its own transactions.
type Engine struct {
	store   *artifact.Store
	meta    *runmeta.Manager
	reg     *registry.Registry
	journal *journal.Journal // optional; nil disables journaling
	def     *pipeline.Definition
	clock   clockFunc
	runIDs  RunIDGenerator
	log     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal attaches a seal journal.
func WithJournal(j *journal.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithClock overrides the timestamp source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithRunIDGenerator overrides local run id generation.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) { e.runIDs = g }
}

// WithLogger attaches a logger. Default discards.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an engine over a root directory with a pipeline definition.
func New(root string, def *pipeline.Definition, opts ...Option) *Engine {
	e := &Engine{
		store:  artifact.New(root),
		meta:   runmeta.NewManager(root),
		reg:    registry.New(root),
		def:    def,
		clock:  func() time.Time { return time.Now().UTC() },
		runIDs: UUIDv7Generator{},
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store exposes the artifact store for stations and the CLI.
func (e *Engine) Store() *artifact.Store {
	return e.store
}

// Definition returns the pipeline definition the engine runs.
func (e *Engine) Definition() *pipeline.Definition {
	return e.def
}

// Registry exposes the run registry for read paths.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// Meta exposes the run metadata manager for read paths.
func (e *Engine) Meta() *runmeta.Manager {
	return e.meta
}

// InitRun creates a new local run: generated run id, metadata record,
// registry row. Supersedes, when non-empty, points at the run this one
// replaces; the superseded run's row stays in the registry untouched.
func (e *Engine) InitRun(supersedes string) (*runmeta.Run, error) {
	runID := e.runIDs.Generate()
	now := e.clock()
	run, err := e.meta.Apply(runID, &runmeta.Run{
		RunID:        runID,
		RunIDKind:    runmeta.KindLocal,
		IssueBinding: runmeta.BindingDeferred,
		CanonicalKey: runID,
		Supersedes:   supersedes,
	}, now)
	if err != nil {
		return nil, err
	}
	_, err = e.reg.Upsert(registry.IndexEntry{
		RunID:        runID,
		CanonicalKey: runID,
		Status:       "NEW",
		UpdatedAt:    now,
	}, false)
	if err != nil {
		return nil, err
	}
	e.log.Info("run initialized", "run_id", runID, "supersedes", supersedes)
	return run, nil
}
