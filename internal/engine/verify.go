package engine

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/takeback/takeback/internal/config"
	"github.com/takeback/takeback/internal/dupe"
	"github.com/takeback/takeback/internal/normalize"
	"github.com/takeback/takeback/internal/scan"
)

// Mismatch is one file whose reconstructed copy disagrees with the original.
type Mismatch struct {
	Path   string // original path, relative to the original root
	Detail string
}

// VerifyReport is the outcome of comparing a reconstructed tree against the
// original export it was built from.
type VerifyReport struct {
	OriginalFiles      int
	ReconstructedFiles int
	Matched            int
	Missing            []string   // originals with no reconstructed counterpart
	Extra              []string   // reconstructed files no original maps to
	SizeMismatches     []Mismatch
	HashMismatches     []Mismatch
	Duration           time.Duration
}

// Passed reports whether every original file has a verified counterpart.
// Extra files are reported but do not fail verification; a destination is
// allowed to hold content from before the rebuild.
func (v *VerifyReport) Passed() bool {
	return len(v.Missing) == 0 && len(v.SizeMismatches) == 0 && len(v.HashMismatches) == 0
}

// Verify checks a reconstructed tree against the original export. Original
// paths are normalized with the same rules the rebuild used, so scaffolding
// folders and metadata sidecars are not expected in the reconstruction.
// Collision-renamed copies (name_1.ext, ...) count as valid counterparts.
func Verify(ctx context.Context, originalDir, reconstructedDir string, cfg *config.Config, logger *slog.Logger) (*VerifyReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	reconAbs, err := filepath.Abs(reconstructedDir)
	if err != nil {
		return nil, fmt.Errorf("resolving reconstructed directory: %w", err)
	}
	if info, err := os.Stat(reconAbs); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("reconstructed directory not found: %s", reconstructedDir)
	}

	scanner := scan.NewScanner(originalDir, logger)
	res, err := scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanning original: %w", err)
	}

	norm := normalize.NewNormalizer(reconAbs,
		cfg.Processing.ScaffoldPrefixes, cfg.Processing.ContentRoots)
	classifier := dupe.NewClassifier(dupe.StrategyHash, cfg.Processing.LargeFileThreshold, logger)

	report := &VerifyReport{}
	used := make(map[string]bool)

	for _, f := range res.Files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if f.IsMetadata {
			continue
		}
		tr := norm.Normalize(f.RelPath, f.IsMetadata)
		if tr.Skip {
			continue
		}
		report.OriginalFiles++

		candidates := collisionVariants(tr.CleanPath)
		if len(candidates) == 0 {
			report.Missing = append(report.Missing, f.RelPath)
			continue
		}

		matched := false
		var sizeSeen, hashSeen bool
		for _, cand := range candidates {
			info, err := os.Stat(cand)
			if err != nil {
				continue
			}
			if info.Size() != f.Size {
				sizeSeen = true
				continue
			}
			// Large files pass on size alone; hashing them would dominate
			// the verification time.
			if f.Size > cfg.Processing.LargeFileThreshold {
				matched = true
				used[cand] = true
				break
			}
			if classifier.Classify(f.Path, cand).IsDuplicate {
				matched = true
				used[cand] = true
				break
			}
			hashSeen = true
		}

		switch {
		case matched:
			report.Matched++
		case hashSeen:
			report.HashMismatches = append(report.HashMismatches, Mismatch{
				Path: f.RelPath, Detail: "content differs from original",
			})
		case sizeSeen:
			report.SizeMismatches = append(report.SizeMismatches, Mismatch{
				Path: f.RelPath, Detail: "size differs from original",
			})
		default:
			report.Missing = append(report.Missing, f.RelPath)
		}
	}

	// Inventory the reconstructed side for files no original accounted for.
	logDirName := cfg.Paths.LogDirName
	err = filepath.WalkDir(reconAbs, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == logDirName {
				return filepath.SkipDir
			}
			return nil
		}
		report.ReconstructedFiles++
		if !used[path] {
			rel, relErr := filepath.Rel(reconAbs, path)
			if relErr != nil {
				rel = path
			}
			report.Extra = append(report.Extra, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	report.Duration = time.Since(start)
	logger.Info("verification complete",
		"originals", report.OriginalFiles,
		"matched", report.Matched,
		"missing", len(report.Missing),
		"mismatched", len(report.SizeMismatches)+len(report.HashMismatches),
		"extra", len(report.Extra),
	)

	return report, nil
}

// collisionVariants returns the canonical destination plus any renamed
// siblings (name_1.ext, name_2.ext, ...) that exist on disk. The canonical
// path is included even when absent so mismatch detection can report it.
func collisionVariants(clean string) []string {
	var out []string
	if _, err := os.Stat(clean); err == nil {
		out = append(out, clean)
	}

	dir := filepath.Dir(clean)
	base := filepath.Base(clean)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 1; ; i++ {
		cand := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(cand); err != nil {
			break
		}
		out = append(out, cand)
	}
	return out
}
