package cli

import (
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/EffortlessMetrics/waystation/internal/registry"
)

// NewIndexCommand creates the index command.
func NewIndexCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "List all runs in the registry",
		Long: `List the run registry in its stored order. The registry is
order-stable: rows never move once inserted.

Example:
  waystation index
  waystation index --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.RequireRoot(); err != nil {
				return err
			}
			reg := registry.New(rootOpts.Root)
			idx, err := reg.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load registry", err)
			}

			out := Output{Format: rootOpts.Format, W: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return out.JSON(idx)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"RUN", "STATUS", "LAST FLOW", "ALIASES", "UPDATED"})
			for _, row := range idx.Runs {
				t.AppendRow(table.Row{
					row.RunID,
					row.Status,
					row.LastFlow,
					strings.Join(row.Aliases, ","),
					row.UpdatedAt.UTC().Format(time.RFC3339),
				})
			}
			t.Render()
			out.Textf("%d runs (registry version %d)", len(idx.Runs), idx.Version)
			return nil
		},
	}
	return cmd
}
