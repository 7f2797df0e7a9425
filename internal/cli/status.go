package cli

import (
	"encoding/json"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/EffortlessMetrics/waystation/internal/artifact"
	"github.com/EffortlessMetrics/waystation/internal/receipt"
)

// flowStatus is one row of a run's per-flow status report.
type flowStatus struct {
	Flow    string `json:"flow"`
	Sealed  bool   `json:"sealed"`
	Status  string `json:"status,omitempty"`
	Action  string `json:"action,omitempty"`
	Routing string `json:"routing,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a run's per-flow seal status",
		Long: `Show each pipeline flow for a run: whether its receipt is sealed and
the three-axis verdict when it is.

Example:
  waystation status run-0192d1f3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.RequireRoot(); err != nil {
				return err
			}
			runID := args[0]

			def, err := loadPipeline(rootOpts)
			if err != nil {
				return err
			}
			store := artifact.New(rootOpts.Root)

			var rows []flowStatus
			for _, fl := range def.Flows {
				row := flowStatus{Flow: fl.Name}
				data, err := store.Get(runID, fl.Name, receipt.ArtifactName)
				switch {
				case artifact.IsNotFound(err):
					// not sealed yet
				case err != nil:
					return WrapExitError(ExitCommandError, "failed to read receipt", err)
				default:
					var rcpt receipt.Receipt
					if err := json.Unmarshal(data, &rcpt); err != nil {
						return WrapExitError(ExitCommandError, "failed to parse receipt", err)
					}
					row.Sealed = true
					row.Status = string(rcpt.Status)
					row.Action = string(rcpt.RecommendedAction)
					row.Routing = string(rcpt.Routing.Kind)
					if rcpt.Routing.Target != "" {
						row.Routing += " -> " + rcpt.Routing.Target
					}
				}
				rows = append(rows, row)
			}

			out := Output{Format: rootOpts.Format, W: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return out.JSON(map[string]any{"run_id": runID, "flows": rows})
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"FLOW", "SEALED", "STATUS", "ACTION", "ROUTING"})
			for _, row := range rows {
				sealed := ""
				if row.Sealed {
					sealed = "yes"
				}
				t.AppendRow(table.Row{row.Flow, sealed, row.Status, row.Action, row.Routing})
			}
			t.Render()
			return nil
		},
	}
	return cmd
}
