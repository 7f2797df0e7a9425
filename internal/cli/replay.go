package cli

import (
	"github.com/spf13/cobra"
)

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <run-id> <flow>",
		Short: "Re-derive a sealed flow and verify it against the journal",
		Long: `Re-run the resolve chain from the artifacts on disk, without writing
anything, and compare the derived receipt against the last journaled
seal (ignoring generated_at).

A divergence means the artifacts changed after sealing or determinism
broke; exit code 1 either way.

Example:
  waystation replay run-0192d1f3 build`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, flow := args[0], args[1]

			eng, closer, err := buildEngine(rootOpts)
			if err != nil {
				return err
			}
			defer closer()

			res, err := eng.Replay(cmd.Context(), runID, flow)
			if err != nil {
				return WrapExitError(ExitCommandError, "replay failed", err)
			}

			out := Output{Format: rootOpts.Format, W: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				payload := map[string]any{
					"run_id": res.RunID,
					"flow":   res.Flow,
					"match":  res.Match,
				}
				if res.Reason != "" {
					payload["reason"] = res.Reason
				}
				if err := out.JSON(payload); err != nil {
					return err
				}
			} else if res.Match {
				out.Textf("%s/%s: replay matches journaled seal", res.RunID, res.Flow)
			} else {
				out.Textf("%s/%s: replay DIVERGED: %s", res.RunID, res.Flow, res.Reason)
			}

			if !res.Match {
				return NewExitError(ExitFailure, "replay diverged from journaled seal")
			}
			return nil
		},
	}
	return cmd
}
