package manifest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
)

// RollbackReport summarizes what a rollback did (or, in dry-run, would do).
type RollbackReport struct {
	Deleted    []string
	Missing    []string // recorded destinations already gone
	Failed     []string
	PrunedDirs []string
	Malformed  int
}

// Rollback undoes a recorded run: every destination the manifest lists is
// deleted, in reverse of recorded order, and directories left empty by a
// deletion are pruned best-effort. Source paths are never touched and
// nothing is recreated. Dry-run reports the exact deletions without
// performing any.
func Rollback(ctx context.Context, manifestPath string, dryRun bool, logger *slog.Logger) (*RollbackReport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	_, entries, malformed, err := Load(manifestPath)
	if err != nil {
		return nil, err
	}
	if malformed > 0 {
		logger.Warn("skipping malformed manifest lines", "count", malformed)
	}

	report := &RollbackReport{Malformed: malformed}

	for i := len(entries) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		dest := entries[i].Destination

		if _, err := os.Stat(dest); os.IsNotExist(err) {
			report.Missing = append(report.Missing, dest)
			logger.Debug("destination already gone", "path", dest)
			continue
		}

		if dryRun {
			report.Deleted = append(report.Deleted, dest)
			logger.Info("would delete", "path", dest)
			continue
		}

		if err := os.Remove(dest); err != nil {
			report.Failed = append(report.Failed, dest)
			logger.Warn("failed to delete destination", "path", dest, "error", err)
			continue
		}
		report.Deleted = append(report.Deleted, dest)
		logger.Debug("deleted", "path", dest)

		if pruned := pruneEmptyDir(filepath.Dir(dest)); pruned != "" {
			report.PrunedDirs = append(report.PrunedDirs, pruned)
		}
	}

	logger.Info("rollback complete",
		"deleted", len(report.Deleted),
		"missing", len(report.Missing),
		"failed", len(report.Failed),
		"dry_run", dryRun,
	)

	return report, nil
}

// pruneEmptyDir removes dir if the last deletion emptied it. Best effort:
// a populated or unremovable directory is left alone.
func pruneEmptyDir(dir string) string {
	names, err := os.ReadDir(dir)
	if err != nil || len(names) > 0 {
		return ""
	}
	if err := os.Remove(dir); err != nil {
		return ""
	}
	return dir
}
