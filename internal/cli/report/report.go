// Package report provides the command that aggregates run artifacts into a
// scheduling distribution report.
package report

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schedscope/schedscope/internal/viz"
)

// New creates the report command.
func New() *cobra.Command {
	var (
		dir      string
		htmlPath string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate run artifacts into a scheduling distribution report",
		Long: `Read every run artifact in a directory and report how each guest
thread's scheduling events were distributed across host CPUs. Prints a
per-thread breakdown and renders a proportion chart as HTML.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := viz.LoadDir(dir)
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				return fmt.Errorf("no run artifacts found in %s", dir)
			}

			if err := viz.WriteBreakdown(cmd.OutOrStdout(), stats); err != nil {
				return err
			}

			if htmlPath != "" {
				if err := viz.RenderHTML(stats, htmlPath); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "chart written to %s\n", htmlPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "/tmp", "directory containing run artifacts")
	cmd.Flags().StringVar(&htmlPath, "html", "thread_scheduling_distribution.html", "HTML chart output path (empty to skip)")

	return cmd
}
