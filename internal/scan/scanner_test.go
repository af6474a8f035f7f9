package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScanFindsFilesAndTotals(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Takeout 1/Drive/doc.txt", "hello")
	writeFile(t, root, "Takeout 1/Drive/photos/pic.jpg", "12345678")

	s := NewScanner(root, testLogger())
	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}

	if res.TotalFiles != 2 {
		t.Fatalf("TotalFiles = %d, want 2", res.TotalFiles)
	}
	if res.TotalSize != 13 {
		t.Errorf("TotalSize = %d, want 13", res.TotalSize)
	}
	for _, f := range res.Files {
		if filepath.IsAbs(f.RelPath) {
			t.Errorf("RelPath %q should be relative", f.RelPath)
		}
		if f.IsMetadata {
			t.Errorf("%q misclassified as metadata", f.RelPath)
		}
	}
}

func TestScanSkipsHiddenAndJunk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Drive/keep.txt", "x")
	writeFile(t, root, "Drive/.hidden", "x")
	writeFile(t, root, "Drive/Thumbs.db", "x")
	writeFile(t, root, "Drive/partial.tmp", "x")
	writeFile(t, root, ".trash/lost.txt", "x")

	res, err := NewScanner(root, testLogger()).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if res.TotalFiles != 1 {
		t.Fatalf("TotalFiles = %d, want 1 (only keep.txt)", res.TotalFiles)
	}
	if res.Files[0].RelPath != "Drive/keep.txt" {
		t.Errorf("kept file = %q, want Drive/keep.txt", res.Files[0].RelPath)
	}
}

func TestScanClassifiesSidecarMetadata(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Drive/doc.txt", "content")
	writeFile(t, root, "Drive/doc.txt.json", `{"title":"doc.txt","mimeType":"text/plain"}`)
	// A user-owned JSON file with no sidecar keys must not be dropped.
	writeFile(t, root, "Drive/settings.json", `{"theme":"dark"}`)

	res, err := NewScanner(root, testLogger()).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}

	byRel := map[string]SourceFile{}
	for _, f := range res.Files {
		byRel[f.RelPath] = f
	}

	if !byRel["Drive/doc.txt.json"].IsMetadata {
		t.Error("sidecar should be classified as metadata")
	}
	if byRel["Drive/settings.json"].IsMetadata {
		t.Error("user JSON should not be classified as metadata")
	}
	if byRel["Drive/doc.txt"].IsMetadata {
		t.Error("plain file should not be classified as metadata")
	}
}

func TestScanMissingRoot(t *testing.T) {
	s := NewScanner(filepath.Join(t.TempDir(), "missing"), testLogger())
	if _, err := s.Scan(context.Background()); err == nil {
		t.Fatal("expected error for missing source root")
	}
}

func TestScanRootIsFile(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "afile", "x")
	if _, err := NewScanner(path, testLogger()).Scan(context.Background()); err == nil {
		t.Fatal("expected error for non-directory source root")
	}
}

func TestScanCancellation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Drive/a.txt", "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewScanner(root, testLogger()).Scan(ctx); err == nil {
		t.Fatal("expected cancelled scan to return an error")
	}
}

func TestScanProgressCallback(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 250; i++ {
		writeFile(t, root, fmt.Sprintf("Drive/file_%03d.txt", i), "x")
	}

	s := NewScanner(root, testLogger())
	var calls int
	s.SetProgress(func(found int, current string) { calls++ })

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if res.TotalFiles < 200 {
		t.Fatalf("unexpected file count %d", res.TotalFiles)
	}
	if calls != res.TotalFiles/100 {
		t.Errorf("progress calls = %d, want %d", calls, res.TotalFiles/100)
	}
}

func TestOriginalTitle(t *testing.T) {
	root := t.TempDir()
	sidecar := writeFile(t, root, "doc.txt.json", `{"title":"My Document.txt"}`)

	if got := OriginalTitle(sidecar); got != "My Document.txt" {
		t.Errorf("OriginalTitle = %q, want %q", got, "My Document.txt")
	}
	if got := OriginalTitle(filepath.Join(root, "missing.json")); got != "" {
		t.Errorf("OriginalTitle for missing file = %q, want empty", got)
	}
}
