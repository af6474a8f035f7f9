package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusLimit int

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent reconstruction runs",
		Long: `Show the recorded reconstruction runs, most recent first: when they
ran, what they copied and skipped, and how they ended.`,
		Example: `  takeback status
  takeback status --limit 5`,
		RunE: statusRun,
	}

	cmd.Flags().IntVar(&statusLimit, "limit", 20, "maximum number of runs to show")

	return cmd
}

func statusRun(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("run history store not initialized")
	}

	runs, err := globalStore.ListRuns(statusLimit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSOURCE\tDEST\tSTRATEGY\tCOPIED\tDUPS\tERRORS\tBYTES\tSTATUS")
	for _, run := range runs {
		strategy := run.Strategy
		if run.DryRun {
			strategy += " (dry)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%d\t%s\t%s\n",
			run.StartTime.Format("2006-01-02 15:04"),
			run.SourceDir,
			run.DestDir,
			strategy,
			run.CopiedFiles, run.TotalFiles,
			run.SkippedDups,
			run.Errors,
			humanize.Bytes(uint64(run.CopiedBytes)),
			run.Status,
		)
	}
	return w.Flush()
}
