package cli

import (
	"github.com/spf13/cobra"

	"github.com/EffortlessMetrics/waystation/internal/pipeline"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [pipeline-dir]",
		Short: "Validate a pipeline definition",
		Long: `Validate a pipeline definition directory of CUE files.

Checks the closed flow vocabulary, canonical flow order, unique artifact
ownership, count name collisions, forensic check references, and gate
ordering. With no argument the built-in pipeline is validated.

Example:
  waystation validate ./pipeline
  waystation validate --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := Output{Format: rootOpts.Format, W: cmd.OutOrStdout()}

			var def *pipeline.Definition
			var err error
			if len(args) == 0 {
				def = pipeline.Default()
			} else {
				def, err = pipeline.LoadDir(args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to load pipeline definition", err)
				}
			}

			errs := pipeline.Validate(def)
			if rootOpts.Format == "json" {
				msgs := make([]string, len(errs))
				for i, e := range errs {
					msgs[i] = e.Error()
				}
				if err := out.JSON(map[string]any{
					"valid":  len(errs) == 0,
					"flows":  len(def.Flows),
					"errors": msgs,
				}); err != nil {
					return err
				}
			} else {
				for _, e := range errs {
					out.Textf("error: %v", e)
				}
				if len(errs) == 0 {
					out.Textf("pipeline valid: %d flows", len(def.Flows))
				}
			}

			if len(errs) > 0 {
				return NewExitError(ExitFailure, "pipeline definition invalid")
			}
			return nil
		},
	}
	return cmd
}
