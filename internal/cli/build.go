package cli

import (
	"os"

	"github.com/EffortlessMetrics/waystation/internal/engine"
	"github.com/EffortlessMetrics/waystation/internal/journal"
	"github.com/EffortlessMetrics/waystation/internal/logging"
	"github.com/EffortlessMetrics/waystation/internal/pipeline"
)

// loadPipeline resolves the pipeline definition: the configured CUE
// directory, or the built-in six-flow pipeline.
func loadPipeline(opts *RootOptions) (*pipeline.Definition, error) {
	if opts.Pipeline == "" {
		return pipeline.Default(), nil
	}
	def, err := pipeline.LoadDir(opts.Pipeline)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load pipeline definition", err)
	}
	if errs := pipeline.Validate(def); len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "invalid pipeline definition", errs[0])
	}
	return def, nil
}

// buildEngine constructs the engine with journal and logger attached.
// The returned closer releases the journal.
func buildEngine(opts *RootOptions) (*engine.Engine, func(), error) {
	if err := opts.RequireRoot(); err != nil {
		return nil, nil, err
	}
	def, err := loadPipeline(opts)
	if err != nil {
		return nil, nil, err
	}

	j, err := journal.Open(opts.JournalPath())
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}

	level := opts.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	log := logging.New(level, opts.LogFormat, os.Stderr)

	eng := engine.New(opts.Root, def,
		engine.WithJournal(j),
		engine.WithLogger(log),
	)
	closer := func() { _ = j.Close() }
	return eng, closer, nil
}
