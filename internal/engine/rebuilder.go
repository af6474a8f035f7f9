package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/takeback/takeback/internal/config"
	"github.com/takeback/takeback/internal/dupe"
	"github.com/takeback/takeback/internal/manifest"
	"github.com/takeback/takeback/internal/normalize"
	"github.com/takeback/takeback/internal/safety"
	"github.com/takeback/takeback/internal/scan"
	"github.com/takeback/takeback/internal/store"
	"github.com/takeback/takeback/internal/transfer"
)

// Options configures one reconstruction run.
type Options struct {
	SourceDir string
	DestDir   string
	Strategy  dupe.Strategy
	DryRun    bool
	Verify    bool // recheck size after every copy

	// Force re-copies files even when duplicate classification would have
	// skipped them; colliding names still resolve to renamed destinations.
	Force bool
}

// Report summarizes a finished run.
type Report struct {
	RunID        string
	State        State
	Stats        Stats
	ManifestPath string
	ErrorLogPath string
	Errors       []ProcessingError
	StartTime    time.Time
	Duration     time.Duration
	DryRun       bool
}

// manifestRecorder is what a run needs from the manifest package.
type manifestRecorder interface {
	Append(manifest.Entry) error
	Close() error
}

// newManifestRecorder is swapped in tests to exercise manifest failures.
var newManifestRecorder = func(path string, hdr manifest.Header) (manifestRecorder, error) {
	return manifest.NewRecorder(path, hdr)
}

// Rebuilder orchestrates reconstruction runs: it composes the scanner,
// normalizer, duplicate classifier, copier, and manifest recorder, drives
// them through the run state machine, and emits events to observers.
type Rebuilder struct {
	cfg    *config.Config
	store  *store.Store // optional, nil disables run history
	logger *slog.Logger

	obsMu     sync.RWMutex
	observers []Observer

	// activeTracker tracks progress for the currently running reconstruction.
	// It stays set after the run finishes so SSE clients can read the terminal
	// snapshot; the next run replaces it.
	trackerMu     sync.RWMutex
	activeTracker *Tracker

	runMu sync.Mutex // one run at a time
}

// NewRebuilder creates a Rebuilder. The store may be nil.
func NewRebuilder(cfg *config.Config, st *store.Store, logger *slog.Logger) *Rebuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rebuilder{
		cfg:    cfg,
		store:  st,
		logger: logger,
	}
}

// AddObserver registers an observer for all subsequent runs.
func (r *Rebuilder) AddObserver(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, o)
}

// ActiveProgress returns the tracker for the current or most recent run,
// or nil if no run has started.
func (r *Rebuilder) ActiveProgress() *Tracker {
	r.trackerMu.RLock()
	defer r.trackerMu.RUnlock()
	return r.activeTracker
}

func (r *Rebuilder) emit(ev Event) {
	ev.Timestamp = time.Now()

	r.trackerMu.RLock()
	tracker := r.activeTracker
	r.trackerMu.RUnlock()
	if tracker != nil {
		tracker.OnEvent(ev)
	}

	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, o := range r.observers {
		o.OnEvent(ev)
	}
}

func (r *Rebuilder) emitLog(level, msg string) {
	r.emit(Event{Kind: EventLog, Log: &LogEvent{Level: level, Message: msg}})
}

func (r *Rebuilder) emitStatus(state State, msg string) {
	r.emit(Event{Kind: EventStatus, Status: &StatusEvent{State: state, Message: msg}})
}

func (r *Rebuilder) emitProgress(percent float64, currentFile, operation string) {
	r.emit(Event{Kind: EventProgress, Progress: &ProgressEvent{
		Percent:     percent,
		CurrentFile: currentFile,
		Operation:   operation,
	}})
}

func (r *Rebuilder) emitStats(stats Stats) {
	s := stats
	r.emit(Event{Kind: EventStats, Stats: &s})
}

// Run executes one reconstruction from Options.SourceDir into Options.DestDir.
// Per-file failures are collected and counted, not fatal; the run only fails
// outright on validation errors, a source tree that yields nothing but scan
// errors, or a manifest that stops accepting entries. On cancellation the
// in-flight file is finished or cleaned up, the manifest is closed, and the
// report carries the cancelled state.
func (r *Rebuilder) Run(ctx context.Context, opts Options) (*Report, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	start := time.Now()
	report := &Report{
		RunID:     uuid.NewString(),
		State:     StateIdle,
		StartTime: start,
		DryRun:    opts.DryRun,
	}

	if opts.Strategy == "" {
		opts.Strategy = dupe.StrategyHash
	}

	tracker := NewTracker()
	r.trackerMu.Lock()
	r.activeTracker = tracker
	r.trackerMu.Unlock()

	r.logger.Info("starting reconstruction",
		"run_id", report.RunID,
		"source", opts.SourceDir,
		"dest", opts.DestDir,
		"strategy", opts.Strategy,
		"dry_run", opts.DryRun,
	)

	r.emitStatus(StateValidating, "Validating source and destination")
	report.State = StateValidating

	if err := r.validate(&opts); err != nil {
		return r.finish(report, StateFailed, err)
	}

	var run *store.Run
	if r.store != nil {
		run = &store.Run{
			RunID:     report.RunID,
			SourceDir: opts.SourceDir,
			DestDir:   opts.DestDir,
			Strategy:  string(opts.Strategy),
			DryRun:    opts.DryRun,
			StartTime: start,
			Status:    "running",
		}
		if err := r.store.CreateRun(run); err != nil {
			r.logger.Error("failed to create run record", "error", err)
			run = nil
		}
	}

	// Scan phase.
	r.emitStatus(StateScanning, "Scanning source files")
	report.State = StateScanning

	scanner := scan.NewScanner(opts.SourceDir, r.logger)
	scanner.SetProgress(func(found int, currentFile string) {
		r.emitProgress(0, currentFile, fmt.Sprintf("scanning: %d files found", found))
	})

	res, err := scanner.Scan(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return r.finishStored(report, run, StateCancelled, nil)
		}
		return r.finishStored(report, run, StateFailed, fmt.Errorf("scan failed: %w", err))
	}
	for _, msg := range res.Errors {
		report.Errors = append(report.Errors, ProcessingError{
			Kind: ErrScan, Message: msg, Time: time.Now(),
		})
	}

	stats := Stats{
		TotalFiles: res.TotalFiles,
		TotalBytes: res.TotalSize,
		Errors:     len(res.Errors),
	}

	// Scan errors are tolerated per-entry, but a scan that yields nothing
	// except errors means the source tree is unusable.
	if stats.TotalFiles == 0 && stats.Errors > 0 {
		report.Stats = stats
		return r.finishStored(report, run, StateFailed,
			fmt.Errorf("scan found no files (%d scan errors)", stats.Errors))
	}

	r.emitStats(stats)
	r.emitLog("info", fmt.Sprintf("Scan complete: %d files, %d bytes", res.TotalFiles, res.TotalSize))

	// Processing phase.
	r.emitStatus(StateProcessing, "Reconstructing folder hierarchy")
	report.State = StateProcessing

	norm := normalize.NewNormalizer(opts.DestDir,
		r.cfg.Processing.ScaffoldPrefixes, r.cfg.Processing.ContentRoots)
	classifier := dupe.NewClassifier(opts.Strategy, r.cfg.Processing.LargeFileThreshold, r.logger)
	copier := transfer.NewCopier(r.cfg.Processing.ChunkSize, r.cfg.Processing.LargeFileThreshold, r.logger)

	var rec manifestRecorder
	if !opts.DryRun {
		logDir := r.cfg.LogDir(opts.DestDir)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return r.finishStored(report, run, StateFailed, fmt.Errorf("creating log directory: %w", err))
		}
		report.ManifestPath = filepath.Join(logDir, manifest.FileName(start))
		rec, err = newManifestRecorder(report.ManifestPath, manifest.Header{
			RunID:     report.RunID,
			Started:   start,
			SourceDir: opts.SourceDir,
			DestDir:   opts.DestDir,
			Strategy:  string(opts.Strategy),
		})
		if err != nil {
			return r.finishStored(report, run, StateFailed, fmt.Errorf("creating manifest: %w", err))
		}
	}

	cancelled := false
	var fatal error
	interval := r.cfg.Processing.ProgressInterval
	if interval <= 0 {
		interval = 100
	}
	lastPercent := 0

	for _, f := range res.Files {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		stats.ProcessedFiles++

		// Emit every N files and whenever the whole percentage advances,
		// so short runs still show movement.
		pct := float64(stats.ProcessedFiles) / float64(stats.TotalFiles) * 100
		pctWhole := stats.ProcessedFiles * 100 / stats.TotalFiles
		if stats.ProcessedFiles%interval == 0 || stats.ProcessedFiles == stats.TotalFiles || pctWhole > lastPercent {
			lastPercent = pctWhole
			r.emitProgress(pct, f.RelPath, "processing")
			r.emitStats(stats)
		}

		if f.IsMetadata {
			stats.SkippedMetadata++
			continue
		}

		tr := norm.Normalize(f.RelPath, f.IsMetadata)
		if tr.Skip {
			r.emitLog("info", fmt.Sprintf("Skipped %s: %s", f.RelPath, tr.Explanation))
			stats.SkippedMetadata++
			continue
		}

		var srcHash string
		if !opts.Force {
			v := classifier.Classify(f.Path, tr.CleanPath)
			srcHash = v.Hash
			if v.IsDuplicate {
				stats.SkippedDups++
				continue
			}
		}

		destPath, renamed, err := transfer.ResolveCollision(tr.CleanPath)
		if err != nil {
			report.Errors = append(report.Errors, ProcessingError{
				Kind: ErrCopy, Path: f.RelPath, Message: err.Error(), Time: time.Now(),
			})
			stats.Errors++
			continue
		}

		if opts.DryRun {
			stats.CopiedFiles++
			stats.CopiedBytes += f.Size
			if renamed {
				stats.RenamedFiles++
			}
			continue
		}

		outcome := copier.Copy(ctx, f.Path, destPath, opts.Verify)
		if !outcome.Success {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			kind := ErrCopy
			if errors.Is(outcome.Err, transfer.ErrVerifyFailed) {
				kind = ErrVerification
			}
			report.Errors = append(report.Errors, ProcessingError{
				Kind: kind, Path: f.RelPath, Message: outcome.Err.Error(), Time: time.Now(),
			})
			stats.Errors++
			r.emitLog("error", fmt.Sprintf("Failed to copy %s: %v", f.RelPath, outcome.Err))
			continue
		}

		stats.CopiedFiles++
		stats.CopiedBytes += outcome.BytesCopied
		if renamed {
			stats.RenamedFiles++
			r.emitLog("info", fmt.Sprintf("Renamed to avoid collision: %s", filepath.Base(outcome.FinalPath)))
		}

		if rec != nil {
			if err := rec.Append(manifest.Entry{
				Source:      f.Path,
				Destination: outcome.FinalPath,
				Size:        outcome.BytesCopied,
				SHA256:      srcHash,
				Renamed:     renamed,
			}); err != nil {
				// A manifest that stops accepting entries leaves further
				// copies unrecoverable by rollback, so the run aborts here.
				r.logger.Error("failed to append manifest entry", "path", outcome.FinalPath, "error", err)
				stats.Errors++
				fatal = fmt.Errorf("manifest append failed for %s: %w", outcome.FinalPath, err)
				break
			}
		}

		if run != nil {
			if err := r.store.AddCopiedFile(&store.CopiedFile{
				RunDBID:  run.ID,
				Source:   f.Path,
				Dest:     outcome.FinalPath,
				Size:     outcome.BytesCopied,
				SHA256:   srcHash,
				Renamed:  renamed,
				CopiedAt: time.Now(),
			}); err != nil {
				r.logger.Warn("failed to record copied file", "path", outcome.FinalPath, "error", err)
			}
		}
	}

	// Reporting phase.
	r.emitStatus(StateReporting, "Writing run reports")
	report.Stats = stats

	if rec != nil {
		if err := rec.Close(); err != nil {
			r.logger.Error("failed to close manifest", "error", err)
		}
	}

	final := StateCompleted
	var runErr error
	switch {
	case cancelled:
		final = StateCancelled
	case fatal != nil:
		final = StateFailed
		runErr = fatal
	case stats.Errors > 0:
		final = StateCompletedWithErrors
	}

	r.emitStats(stats)
	r.logger.Info("reconstruction finished",
		"run_id", report.RunID,
		"state", final,
		"copied", stats.CopiedFiles,
		"skipped_dups", stats.SkippedDups,
		"skipped_metadata", stats.SkippedMetadata,
		"renamed", stats.RenamedFiles,
		"errors", stats.Errors,
		"bytes", stats.CopiedBytes,
		"duration", time.Since(start),
	)

	report, retErr := r.finishStored(report, run, final, runErr)
	if !opts.DryRun && len(report.Errors) > 0 {
		report.ErrorLogPath = r.writeErrorLog(opts.DestDir, start, report.Errors)
	}
	return report, retErr
}

// validate checks that the source exists and the destination does not nest
// inside it (or vice versa), then makes both paths absolute in place.
func (r *Rebuilder) validate(opts *Options) error {
	srcAbs, err := filepath.Abs(opts.SourceDir)
	if err != nil {
		return fmt.Errorf("resolving source: %w", err)
	}
	destAbs, err := filepath.Abs(opts.DestDir)
	if err != nil {
		return fmt.Errorf("resolving destination: %w", err)
	}

	info, err := os.Stat(srcAbs)
	if err != nil {
		return fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source is not a directory: %s", srcAbs)
	}

	if _, err := safety.EnsureUnderRoot(srcAbs, destAbs); err == nil {
		return fmt.Errorf("destination %s is inside source %s", destAbs, srcAbs)
	}
	if _, err := safety.EnsureUnderRoot(destAbs, srcAbs); err == nil {
		return fmt.Errorf("source %s is inside destination %s", srcAbs, destAbs)
	}

	if !opts.DryRun {
		if err := os.MkdirAll(destAbs, 0o755); err != nil {
			return fmt.Errorf("creating destination: %w", err)
		}
	}

	opts.SourceDir = srcAbs
	opts.DestDir = destAbs
	return nil
}

// writeErrorLog dumps the run's processing errors next to the manifest.
// Best effort: a failure here only logs a warning.
func (r *Rebuilder) writeErrorLog(destDir string, start time.Time, procErrors []ProcessingError) string {
	logDir := r.cfg.LogDir(destDir)
	path := filepath.Join(logDir, fmt.Sprintf("errors_%s.log", start.Format("20060102_150405")))

	var b strings.Builder
	for _, pe := range procErrors {
		b.WriteString(pe.Time.Format(time.RFC3339))
		b.WriteString(" ")
		b.WriteString(pe.String())
		b.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		r.logger.Warn("failed to write error log", "path", path, "error", err)
		return ""
	}
	return path
}

// finish records the terminal state on the report, emits the final status,
// and returns the run error (nil for clean or cancelled completion).
func (r *Rebuilder) finish(report *Report, final State, err error) (*Report, error) {
	report.State = final
	report.Duration = time.Since(report.StartTime)

	msg := string(final)
	if err != nil {
		msg = err.Error()
		report.Errors = append(report.Errors, ProcessingError{
			Kind: ErrFatal, Message: err.Error(), Time: time.Now(),
		})
		r.emitLog("error", err.Error())
	}
	r.emitStatus(final, msg)

	return report, err
}

// finishStored is finish plus terminal bookkeeping in the store.
func (r *Rebuilder) finishStored(report *Report, run *store.Run, final State, err error) (*Report, error) {
	report, retErr := r.finish(report, final, err)

	if run != nil {
		run.EndTime = time.Now()
		run.Status = string(final)
		run.TotalFiles = report.Stats.TotalFiles
		run.CopiedFiles = report.Stats.CopiedFiles
		run.SkippedDups = report.Stats.SkippedDups
		run.SkippedMetadata = report.Stats.SkippedMetadata
		run.RenamedFiles = report.Stats.RenamedFiles
		run.Errors = report.Stats.Errors
		run.TotalBytes = report.Stats.TotalBytes
		run.CopiedBytes = report.Stats.CopiedBytes
		run.ManifestPath = report.ManifestPath
		if err != nil {
			run.ErrorMessage = err.Error()
		}
		if updErr := r.store.UpdateRun(run); updErr != nil {
			r.logger.Error("failed to update run record", "run_id", run.RunID, "error", updErr)
		}
	}

	return report, retErr
}
