package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/takeback/takeback/internal/engine"
)

var extractOutput string

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <archive|directory>...",
		Short: "Unpack export archives into a working directory",
		Long: `Unpack one or more export archives (.zip, .tgz, .tar.gz) into a working
directory. Directory arguments are searched for archives. Entries that
would escape the output directory are rejected.`,
		Example: `  takeback extract ~/Downloads/takeout --output ~/takeout-extracted
  takeback extract takeout-001.zip takeout-002.zip --output ~/takeout-extracted`,
		Args: cobra.MinimumNArgs(1),
		RunE: extractRun,
	}

	cmd.Flags().StringVar(&extractOutput, "output", "", "directory to extract into (required unless set in config)")

	return cmd
}

func extractRun(cmd *cobra.Command, args []string) error {
	output := extractOutput
	if output == "" {
		output = globalCfg.Paths.ExtractDir
	}
	if output == "" {
		return fmt.Errorf("no output directory: pass --output or set paths.extract_dir in the config")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := engine.Extract(ctx, args, output, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Extraction complete (%s)\n", report.Duration.Truncate(time.Millisecond))
	fmt.Printf("  Archives:  %d (%d failed)\n", report.Archives, report.ArchivesFailed)
	fmt.Printf("  Files:     %d (%s)\n", report.FilesExtracted, humanize.Bytes(uint64(report.BytesExtracted)))
	for _, e := range report.Errors {
		fmt.Printf("  Error: %s\n", e)
	}

	if report.ArchivesFailed > 0 {
		return fmt.Errorf("%d archive(s) failed to extract", report.ArchivesFailed)
	}
	return nil
}
