package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/takeback/takeback/internal/safety"
)

// sidecarReadLimit bounds how much of a candidate .json file is parsed when
// deciding whether it is a sidecar.
const sidecarReadLimit = 1 << 20

// SourceFile describes one file discovered during a scan.
type SourceFile struct {
	Path       string // absolute path on disk
	Size       int64
	RelPath    string // slash-separated path relative to the source root
	IsMetadata bool   // sidecar description file, not user content
}

// Result summarizes a completed scan of a source root.
type Result struct {
	Files      []SourceFile
	TotalFiles int
	TotalSize  int64
	Errors     []string
}

// ProgressFunc receives periodic scan progress: files found so far and the
// name of the most recently discovered file.
type ProgressFunc func(found int, currentFile string)

// Scanner walks a source tree and catalogs every candidate file.
type Scanner struct {
	root     string
	logger   *slog.Logger
	progress ProgressFunc

	// How often (in files) to invoke the progress callback.
	progressEvery int
}

// NewScanner creates a Scanner for the given source root.
func NewScanner(root string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		root:          root,
		logger:        logger,
		progressEvery: 100,
	}
}

// SetProgress installs a progress callback invoked every progressEvery files.
func (s *Scanner) SetProgress(fn ProgressFunc) {
	s.progress = fn
}

// Scan walks the source root once and returns everything found. Hidden
// directories, hidden files, and OS junk are skipped. A single unreadable
// entry is recorded in Result.Errors and skipped; it does not abort the walk.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	res := &Result{}

	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("source directory does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path is not a directory: %s", s.root)
	}

	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if walkErr != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", path, walkErr))
			s.logger.Warn("scan entry unreadable, skipping", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path != s.root && safety.IsHiddenName(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if safety.IsHiddenName(name) || safety.IsJunkName(name) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", path, err))
			s.logger.Warn("could not stat file, skipping", "path", path, "error", err)
			return nil
		}
		if !fi.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", path, err))
			return nil
		}

		res.Files = append(res.Files, SourceFile{
			Path:       path,
			Size:       fi.Size(),
			RelPath:    filepath.ToSlash(rel),
			IsMetadata: isSidecarMetadata(path),
		})
		res.TotalSize += fi.Size()

		if s.progress != nil && len(res.Files)%s.progressEvery == 0 {
			s.progress(len(res.Files), name)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	res.TotalFiles = len(res.Files)
	s.logger.Info("scan complete",
		"files", res.TotalFiles,
		"total_bytes", res.TotalSize,
		"errors", len(res.Errors),
	)

	return res, nil
}

// isSidecarMetadata reports whether a file is an export sidecar: a .json
// companion describing another file's title and timestamps. Identified by
// content, not just extension, so legitimate user-owned JSON survives.
func isSidecarMetadata(path string) bool {
	if filepath.Ext(path) != ".json" {
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	// Sidecars are small; cap the read so a huge user JSON is never slurped.
	var doc map[string]json.RawMessage
	dec := json.NewDecoder(io.LimitReader(f, sidecarReadLimit))
	if err := dec.Decode(&doc); err != nil {
		return false
	}

	for _, key := range []string{"title", "createdTime", "modifiedTime", "mimeType"} {
		if _, ok := doc[key]; ok {
			return true
		}
	}
	return false
}

// OriginalTitle extracts the human-readable title from a sidecar file,
// or "" if the file is not a readable sidecar.
func OriginalTitle(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	var doc struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(io.LimitReader(f, sidecarReadLimit)).Decode(&doc); err != nil {
		return ""
	}
	return doc.Title
}
