package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/EffortlessMetrics/waystation/internal/artifact"
	"github.com/EffortlessMetrics/waystation/internal/receipt"
	"github.com/EffortlessMetrics/waystation/internal/runmeta"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id> [flow]",
		Short: "Show a run's metadata, or one flow's receipt",
		Long: `With just a run id, print the merged run metadata record. With a flow,
print that flow's sealed receipt.

Example:
  waystation show run-0192d1f3
  waystation show run-0192d1f3 build`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.RequireRoot(); err != nil {
				return err
			}
			runID := args[0]
			out := Output{Format: rootOpts.Format, W: cmd.OutOrStdout()}

			if len(args) == 2 {
				store := artifact.New(rootOpts.Root)
				data, err := store.Get(runID, args[1], receipt.ArtifactName)
				if artifact.IsNotFound(err) {
					return NewExitError(ExitFailure, "flow not sealed")
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read receipt", err)
				}
				var rcpt receipt.Receipt
				if err := json.Unmarshal(data, &rcpt); err != nil {
					return WrapExitError(ExitCommandError, "failed to parse receipt", err)
				}
				if rootOpts.Format == "json" {
					return out.JSON(&rcpt)
				}
				printReceipt(out, &rcpt)
				return nil
			}

			meta := runmeta.NewManager(rootOpts.Root)
			run, err := meta.Load(runID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load run metadata", err)
			}
			if run == nil {
				return NewExitError(ExitFailure, "run not found")
			}
			if rootOpts.Format == "json" {
				return out.JSON(run)
			}
			out.Textf("run:           %s (%s)", run.RunID, run.RunIDKind)
			out.Textf("canonical key: %s", run.CanonicalKey)
			if len(run.Aliases) > 0 {
				out.Textf("aliases:       %v", run.Aliases)
			}
			if run.IssueNumber != nil {
				out.Textf("issue:         #%d (%s)", *run.IssueNumber, run.IssueBinding)
			}
			if run.Supersedes != "" {
				out.Textf("supersedes:    %s", run.Supersedes)
			}
			out.Textf("ops allowed:   %s", flagText(run.OpsAllowed))
			if len(run.FlowsStarted) > 0 {
				out.Textf("flows started: %v", run.FlowsStarted)
			}
			out.Textf("iteration:     %d", run.Iteration)
			out.Textf("updated:       %s", run.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"))
			return nil
		},
	}
	return cmd
}

func flagText(f runmeta.Flag) string {
	if f == runmeta.FlagUnset {
		return "unset"
	}
	return string(f)
}
