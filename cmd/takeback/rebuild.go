package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/takeback/takeback/internal/dupe"
	"github.com/takeback/takeback/internal/engine"
)

var (
	rebuildSource   string
	rebuildDest     string
	rebuildStrategy string
	rebuildDryRun   bool
	rebuildVerify   bool
	rebuildForce    bool
)

func newRebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Reconstruct the original folder hierarchy from an extracted export",
		Long: `Walk an extracted export tree, strip the scaffolding folders the export
format added, skip metadata sidecars and files already present at the
destination, and copy everything else into its original place.

Duplicate detection strategies:
  fast    same size counts as duplicate (fastest, least safe)
  hash    same size and SHA-256 digest (default)
  verify  hash, plus byte comparison for very large files

Every copy is recorded in an append-only manifest so the run can be
rolled back. Use --dry-run to preview without touching the destination.`,
		Example: `  takeback rebuild --source ~/takeout-extracted --dest ~/Restored
  takeback rebuild --source ~/takeout-extracted --dest ~/Restored --dry-run
  takeback rebuild --source ~/takeout-extracted --dest ~/Restored --strategy verify --verify`,
		RunE: rebuildRun,
	}

	cmd.Flags().StringVar(&rebuildSource, "source", "", "extracted export directory to read (required)")
	cmd.Flags().StringVar(&rebuildDest, "dest", "", "destination directory to rebuild into (required)")
	cmd.Flags().StringVar(&rebuildStrategy, "strategy", "hash", "duplicate detection strategy (fast, hash, verify)")
	cmd.Flags().BoolVar(&rebuildDryRun, "dry-run", false, "report what would be done without copying")
	cmd.Flags().BoolVar(&rebuildVerify, "verify", false, "recheck each file after copying")
	cmd.Flags().BoolVar(&rebuildForce, "force", false, "copy even files classified as duplicates")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("dest")

	return cmd
}

func rebuildRun(cmd *cobra.Command, args []string) error {
	strategy, err := dupe.ParseStrategy(rebuildStrategy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rebuilder := engine.NewRebuilder(globalCfg, globalStore, logger)
	report, err := rebuilder.Run(ctx, engine.Options{
		SourceDir: rebuildSource,
		DestDir:   rebuildDest,
		Strategy:  strategy,
		DryRun:    rebuildDryRun,
		Verify:    rebuildVerify,
		Force:     rebuildForce,
	})
	if err != nil {
		return err
	}

	printRebuildReport(report)

	switch report.State {
	case engine.StateCompleted:
		return nil
	case engine.StateCancelled:
		return fmt.Errorf("run cancelled")
	default:
		return fmt.Errorf("run finished with state %s (%d errors)", report.State, report.Stats.Errors)
	}
}

func printRebuildReport(report *engine.Report) {
	s := report.Stats

	title := "Rebuild complete"
	if report.DryRun {
		title = "Dry run complete"
	}
	fmt.Printf("%s (%s)\n", title, report.Duration.Truncate(time.Millisecond))
	fmt.Printf("  Files found:       %d (%s)\n", s.TotalFiles, humanize.Bytes(uint64(s.TotalBytes)))
	fmt.Printf("  Copied:            %d (%s)\n", s.CopiedFiles, humanize.Bytes(uint64(s.CopiedBytes)))
	fmt.Printf("  Duplicates:        %d skipped\n", s.SkippedDups)
	fmt.Printf("  Metadata sidecars: %d skipped\n", s.SkippedMetadata)
	fmt.Printf("  Renamed:           %d\n", s.RenamedFiles)
	fmt.Printf("  Errors:            %d\n", s.Errors)
	if report.ManifestPath != "" {
		fmt.Printf("  Manifest:          %s\n", report.ManifestPath)
	}
	if report.ErrorLogPath != "" {
		fmt.Printf("  Error log:         %s\n", report.ErrorLogPath)
	}
}
