package engine

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/takeback/takeback/internal/safety"
)

// ExtractReport summarizes an archive extraction.
type ExtractReport struct {
	Archives       int
	ArchivesFailed int
	FilesExtracted int
	BytesExtracted int64
	Errors         []string
	Duration       time.Duration
}

// DiscoverArchives lists export archives directly under dir: .zip, .tgz and
// .tar.gz files, skipping hidden names and OS junk.
func DiscoverArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}

	var archives []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if safety.IsHiddenName(name) || safety.IsJunkName(name) {
			continue
		}
		if isArchiveName(name) {
			archives = append(archives, filepath.Join(dir, name))
		}
	}
	return archives, nil
}

func isArchiveName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".zip") ||
		strings.HasSuffix(lower, ".tgz") ||
		strings.HasSuffix(lower, ".tar.gz")
}

// Extract unpacks export archives into outputDir. Each source may be an
// archive file or a directory to discover archives in. A bad archive is
// recorded and skipped; it does not abort the remaining ones.
func Extract(ctx context.Context, sources []string, outputDir string, logger *slog.Logger) (*ExtractReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	var archives []string
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("source not found: %w", err)
		}
		if info.IsDir() {
			found, err := DiscoverArchives(src)
			if err != nil {
				return nil, err
			}
			archives = append(archives, found...)
		} else {
			if !isArchiveName(src) {
				return nil, fmt.Errorf("not a supported archive: %s", src)
			}
			archives = append(archives, src)
		}
	}
	if len(archives) == 0 {
		return nil, fmt.Errorf("no archives found in %v", sources)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	report := &ExtractReport{Archives: len(archives)}
	for _, arch := range archives {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}

		logger.Info("extracting archive", "archive", filepath.Base(arch))

		var extracted int
		var size int64
		var err error
		if strings.HasSuffix(strings.ToLower(arch), ".zip") {
			extracted, size, err = extractZip(ctx, arch, outputDir)
		} else {
			extracted, size, err = extractTarGz(ctx, arch, outputDir)
		}

		report.FilesExtracted += extracted
		report.BytesExtracted += size
		if err != nil {
			if ctx.Err() != nil {
				report.Duration = time.Since(start)
				return report, err
			}
			report.ArchivesFailed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", filepath.Base(arch), err))
			logger.Error("archive extraction failed", "archive", filepath.Base(arch), "error", err)
			continue
		}

		logger.Info("archive extracted", "archive", filepath.Base(arch), "files", extracted, "bytes", size)
	}

	report.Duration = time.Since(start)
	return report, nil
}

// extractZip unpacks one zip archive into outputDir.
// Returns files extracted count and total bytes.
func extractZip(ctx context.Context, archivePath, outputDir string) (int, int64, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, 0, fmt.Errorf("opening zip: %w", err)
	}
	defer zr.Close()

	extracted := 0
	totalSize := int64(0)

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return extracted, totalSize, err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}

		destPath, err := safety.SafeJoinUnder(outputDir, f.Name)
		if err != nil {
			return extracted, totalSize, fmt.Errorf("unsafe path in archive %q: %w", f.Name, err)
		}

		n, err := writeArchiveEntry(destPath, func() (io.ReadCloser, error) { return f.Open() })
		if err != nil {
			return extracted, totalSize, fmt.Errorf("extracting %s: %w", f.Name, err)
		}

		extracted++
		totalSize += n
	}

	return extracted, totalSize, nil
}

// extractTarGz decompresses and untars an archive into outputDir.
func extractTarGz(ctx context.Context, archivePath, outputDir string) (int, int64, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, 0, fmt.Errorf("opening archive: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, 0, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)

	extracted := 0
	totalSize := int64(0)

	for {
		if err := ctx.Err(); err != nil {
			return extracted, totalSize, err
		}

		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return extracted, totalSize, fmt.Errorf("reading tar entry: %w", err)
		}

		// Skip directories.
		if header.Typeflag == tar.TypeDir {
			continue
		}
		// Reject symlinks/hardlinks and other non-regular entries.
		if header.Typeflag != tar.TypeReg {
			return extracted, totalSize, fmt.Errorf("unsupported tar entry type for %s: %c", header.Name, header.Typeflag)
		}

		destPath, err := safety.SafeJoinUnder(outputDir, header.Name)
		if err != nil {
			return extracted, totalSize, fmt.Errorf("unsafe path in archive %q: %w", header.Name, err)
		}

		n, err := writeArchiveEntry(destPath, func() (io.ReadCloser, error) {
			return io.NopCloser(tr), nil
		})
		if err != nil {
			return extracted, totalSize, fmt.Errorf("extracting %s: %w", header.Name, err)
		}

		extracted++
		totalSize += n
	}

	return extracted, totalSize, nil
}

// writeArchiveEntry streams one archive entry to destPath, creating parent
// directories as needed.
func writeArchiveEntry(destPath string, open func() (io.ReadCloser, error)) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("creating directory: %w", err)
	}

	in, err := open()
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("creating file: %w", err)
	}

	n, err := io.Copy(out, in)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return n, err
	}
	return n, nil
}
