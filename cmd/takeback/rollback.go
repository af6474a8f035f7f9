package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/takeback/takeback/internal/manifest"
)

var rollbackDryRun bool

func newRollbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback <manifest>",
		Short: "Undo a rebuild by deleting everything its manifest recorded",
		Long: `Delete the destination files a rebuild created, in reverse manifest
order, and prune directories the deletions emptied. Source files are
never touched. Running a rollback twice is safe: already-deleted files
are reported as missing, not errors.`,
		Example: `  takeback rollback ~/takeback_logs/manifest_20260829_103000.jsonl
  takeback rollback ~/takeback_logs/manifest_20260829_103000.jsonl --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: rollbackRun,
	}

	cmd.Flags().BoolVar(&rollbackDryRun, "dry-run", false, "report what would be deleted without deleting")

	return cmd
}

func rollbackRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := manifest.Rollback(ctx, args[0], rollbackDryRun, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if rollbackDryRun {
		// A dry run lists the exact deletion set, not just counts.
		for _, path := range report.Deleted {
			fmt.Fprintf(out, "would delete: %s\n", path)
		}
		fmt.Fprintln(out, "Rollback dry run")
	} else {
		fmt.Fprintln(out, "Rollback complete")
	}
	fmt.Fprintf(out, "  Deleted:        %d\n", len(report.Deleted))
	fmt.Fprintf(out, "  Already gone:   %d\n", len(report.Missing))
	fmt.Fprintf(out, "  Failed:         %d\n", len(report.Failed))
	fmt.Fprintf(out, "  Pruned dirs:    %d\n", len(report.PrunedDirs))
	if report.Malformed > 0 {
		fmt.Fprintf(out, "  Malformed manifest lines skipped: %d\n", report.Malformed)
	}
	for _, f := range report.Failed {
		fmt.Fprintf(out, "  failed: %s\n", f)
	}

	if len(report.Failed) > 0 {
		return fmt.Errorf("%d file(s) could not be deleted", len(report.Failed))
	}
	return nil
}
