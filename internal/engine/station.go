package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/EffortlessMetrics/waystation/internal/artifact"
	"github.com/EffortlessMetrics/waystation/internal/journal"
)

// Station is one pluggable unit of work within a flow. The engine only
// depends on this contract; what a station decides internally is its own
// business. Implementations must be idempotent: rerunning with unchanged
// inputs produces byte-identical artifacts modulo timestamps.
type Station interface {
	// Name returns the station's stable identifier, matching the
	// pipeline definition.
	Name() string

	// Run reads prior artifacts and writes exactly the artifacts this
	// station owns.
	Run(ctx context.Context, sc *StationContext) error
}

// StationContext is what a station sees: the run it is working, the flow
// it belongs to, and scoped artifact access.
type StationContext struct {
	RunID string
	Flow  string
	Store *artifact.Store
	Log   *slog.Logger
}

// Put writes an artifact into the station's flow directory.
func (sc *StationContext) Put(name string, data []byte) error {
	return sc.Store.Put(sc.RunID, sc.Flow, name, data)
}

// Get reads an artifact from a flow of this run. Stations read from any
// flow but write only into their own.
func (sc *StationContext) Get(flow, name string) ([]byte, error) {
	return sc.Store.Get(sc.RunID, flow, name)
}

// StationFunc adapts a function to the Station interface.
type StationFunc struct {
	StationName string
	Fn          func(ctx context.Context, sc *StationContext) error
}

func (s StationFunc) Name() string { return s.StationName }

func (s StationFunc) Run(ctx context.Context, sc *StationContext) error {
	return s.Fn(ctx, sc)
}

// StationRegistry maps station names to implementations. The pipeline
// definition names stations; the registry supplies their behavior.
type StationRegistry struct {
	stations map[string]Station
}

// NewStationRegistry creates an empty registry.
func NewStationRegistry() *StationRegistry {
	return &StationRegistry{stations: make(map[string]Station)}
}

// Register adds a station. Registering the same name twice is an error:
// artifact ownership is exclusive, so station identity must be too.
func (r *StationRegistry) Register(s Station) error {
	if _, dup := r.stations[s.Name()]; dup {
		return fmt.Errorf("station %q registered twice", s.Name())
	}
	r.stations[s.Name()] = s
	return nil
}

// Lookup returns a registered station.
func (r *StationRegistry) Lookup(name string) (Station, bool) {
	s, ok := r.stations[name]
	return s, ok
}

// RunFlow executes a flow's registered stations strictly sequentially, in
// declaration order, journaling each execution. A station error stops the
// flow: later stations consume earlier outputs, so running past a failure
// would work from inputs that never materialized.
//
// Stations declared in the pipeline but not registered are skipped; the
// seal afterwards reports their missing artifacts. This keeps the engine
// usable when only part of a pipeline runs in-process.
func (e *Engine) RunFlow(ctx context.Context, runID, flow string, reg *StationRegistry) error {
	fl := e.def.Flow(flow)
	if fl == nil {
		return fmt.Errorf("run flow: unknown flow %q", flow)
	}

	sc := &StationContext{
		RunID: runID,
		Flow:  flow,
		Store: e.store,
		Log:   e.log.With("run_id", runID, "flow", flow),
	}

	for _, spec := range fl.Stations {
		if err := ctx.Err(); err != nil {
			return err
		}
		station, ok := reg.Lookup(spec.Name)
		if !ok {
			sc.Log.Debug("station not registered, skipping", "station", spec.Name)
			continue
		}

		sc.Log.Info("station starting", "station", spec.Name)
		runErr := station.Run(ctx, sc)

		ev := journal.StationEvent{
			RunID:      runID,
			Flow:       flow,
			Station:    spec.Name,
			Outcome:    journal.OutcomeOK,
			RecordedAt: e.clock(),
		}
		if runErr != nil {
			ev.Outcome = journal.OutcomeError
			ev.Detail = runErr.Error()
		}
		if e.journal != nil {
			if jErr := e.journal.RecordStation(ctx, ev); jErr != nil {
				sc.Log.Error("journal write failed", "station", spec.Name, "error", jErr)
			}
		}
		if runErr != nil {
			return fmt.Errorf("station %s: %w", spec.Name, runErr)
		}
		sc.Log.Info("station done", "station", spec.Name)
	}
	return nil
}

// clockFunc returns the current time; swapped for a fixed clock in tests.
type clockFunc func() time.Time
