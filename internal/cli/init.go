package cli

import (
	"github.com/spf13/cobra"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Supersedes string
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new local run",
		Long: `Initialize a new run: a generated run id, its metadata record, and a
registry row. The run id is a time-sortable UUIDv7 slug.

Example:
  waystation init --root ./runs
  waystation init --supersedes run-0192d1f3-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closer, err := buildEngine(opts.RootOptions)
			if err != nil {
				return err
			}
			defer closer()

			run, err := eng.InitRun(opts.Supersedes)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to initialize run", err)
			}

			out := Output{Format: rootOpts.Format, W: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return out.JSON(run)
			}
			out.Textf("initialized run %s", run.RunID)
			if run.Supersedes != "" {
				out.Textf("supersedes %s", run.Supersedes)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Supersedes, "supersedes", "", "run id this run replaces")
	return cmd
}
