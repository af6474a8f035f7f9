package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/takeback/takeback/internal/engine"
)

var (
	verifyOriginal      string
	verifyReconstructed string
	verifyShowAll       bool
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a reconstructed tree against the original export",
		Long: `Compare every content file in the original export against its
reconstructed counterpart: presence, size, and SHA-256 for files under
the large-file threshold. Original paths go through the same scaffolding
rules as the rebuild, so wrapper folders and metadata sidecars are not
expected in the reconstruction.`,
		Example: `  takeback verify --original ~/takeout-extracted --reconstructed ~/Restored`,
		RunE:    verifyRun,
	}

	cmd.Flags().StringVar(&verifyOriginal, "original", "", "extracted export directory (required)")
	cmd.Flags().StringVar(&verifyReconstructed, "reconstructed", "", "rebuilt directory to check (required)")
	cmd.Flags().BoolVar(&verifyShowAll, "show-all", false, "list every missing, mismatched, and extra file")
	_ = cmd.MarkFlagRequired("original")
	_ = cmd.MarkFlagRequired("reconstructed")

	return cmd
}

func verifyRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := engine.Verify(ctx, verifyOriginal, verifyReconstructed, globalCfg, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Verification complete (%s)\n", report.Duration.Truncate(time.Millisecond))
	fmt.Printf("  Originals:       %d\n", report.OriginalFiles)
	fmt.Printf("  Matched:         %d\n", report.Matched)
	fmt.Printf("  Missing:         %d\n", len(report.Missing))
	fmt.Printf("  Size mismatches: %d\n", len(report.SizeMismatches))
	fmt.Printf("  Hash mismatches: %d\n", len(report.HashMismatches))
	fmt.Printf("  Extra files:     %d\n", len(report.Extra))

	if verifyShowAll {
		for _, p := range report.Missing {
			fmt.Printf("  missing: %s\n", p)
		}
		for _, m := range report.SizeMismatches {
			fmt.Printf("  size mismatch: %s (%s)\n", m.Path, m.Detail)
		}
		for _, m := range report.HashMismatches {
			fmt.Printf("  hash mismatch: %s (%s)\n", m.Path, m.Detail)
		}
		for _, p := range report.Extra {
			fmt.Printf("  extra: %s\n", p)
		}
	}

	if !report.Passed() {
		return fmt.Errorf("verification failed: %d missing, %d mismatched",
			len(report.Missing), len(report.SizeMismatches)+len(report.HashMismatches))
	}
	fmt.Println("Verification passed.")
	return nil
}
