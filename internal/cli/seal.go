package cli

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/EffortlessMetrics/waystation/internal/receipt"
)

// NewSealCommand creates the seal command.
func NewSealCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seal <run-id> <flow>",
		Short: "Seal a flow's receipt from the artifacts on disk",
		Long: `Derive and commit a flow's receipt: gather the flow's artifacts,
extract anchored facts, cross-check claims against evidence, resolve the
three-axis verdict, and write the receipt, run metadata, registry row,
and journal entry.

Sealing is idempotent: rerunning with unchanged artifacts reproduces the
same receipt apart from generated_at.

Exit code 0 means VERIFIED; 1 means UNVERIFIED or CANNOT_PROCEED.

Example:
  waystation seal run-0192d1f3 build
  waystation seal run-0192d1f3 build --format json`,
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

			rcpt, err := eng.Seal(cmd.Context(), runID, flow)
			if err != nil {
				return WrapExitError(ExitCommandError, "seal failed", err)
			}

			out := Output{Format: rootOpts.Format, W: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				if err := out.JSON(rcpt); err != nil {
					return err
				}
			} else {
				printReceipt(out, rcpt)
			}

			if rcpt.Status != receipt.StatusVerified {
				return NewExitError(ExitFailure, "flow did not verify")
			}
			return nil
		},
	}
	return cmd
}

func printReceipt(out Output, rcpt *receipt.Receipt) {
	out.Textf("%s/%s: %s", rcpt.RunID, rcpt.Flow, rcpt.Status)
	out.Textf("  action:  %s", rcpt.RecommendedAction)
	if rcpt.Routing.Target != "" {
		out.Textf("  routing: %s -> %s", rcpt.Routing.Kind, rcpt.Routing.Target)
	} else {
		out.Textf("  routing: %s", rcpt.Routing.Kind)
	}
	names := make([]string, 0, len(rcpt.Counts))
	for name := range rcpt.Counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		n := rcpt.Counts[name]
		if n == nil {
			out.Textf("  count %s: null (%s)", name, rcpt.CountReasons[name])
		} else {
			out.Textf("  count %s: %d", name, *n)
		}
	}
	for _, b := range rcpt.Blockers {
		out.Textf("  blocker: %s", b)
	}
	for _, c := range rcpt.Concerns {
		out.Textf("  concern: %s", c)
	}
}
