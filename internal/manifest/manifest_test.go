package manifest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRecorder(t *testing.T) (*Recorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.jsonl")
	r, err := NewRecorder(path, Header{
		RunID:     "test-run",
		Started:   time.Now().UTC(),
		SourceDir: "/src",
		DestDir:   "/dst",
		Strategy:  "hash",
	})
	if err != nil {
		t.Fatal(err)
	}
	return r, path
}

func TestRecorderRoundTrip(t *testing.T) {
	r, path := newTestRecorder(t)

	entries := []Entry{
		{Source: "/src/a.txt", Destination: "/dst/a.txt", Size: 10, SHA256: "aa"},
		{Source: "/src/b.txt", Destination: "/dst/b.txt", Size: 20},
		{Source: "/src/c.txt", Destination: "/dst/c_1.txt", Size: 30, Renamed: true},
	}
	for _, e := range entries {
		if err := r.Append(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	hdr, got, malformed, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if malformed != 0 {
		t.Errorf("malformed = %d, want 0", malformed)
	}
	if hdr == nil || hdr.RunID != "test-run" || hdr.Strategy != "hash" {
		t.Fatalf("header = %+v", hdr)
	}
	if len(got) != 3 {
		t.Fatalf("entries = %d, want 3", len(got))
	}
	// Recorded order is preserved.
	if got[0].Destination != "/dst/a.txt" || got[2].Destination != "/dst/c_1.txt" {
		t.Errorf("entry order wrong: %+v", got)
	}
	if !got[2].Renamed {
		t.Error("renamed flag lost")
	}
	if got[0].Timestamp.IsZero() {
		t.Error("append should stamp entries")
	}
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.jsonl")
	content := `{"kind":"header","run_id":"r1"}
not json at all
{"kind":"entry","destination":"/dst/ok.txt","size":5}
{"kind":"entry","size":5}
{"kind":"mystery"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	hdr, entries, malformed, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if hdr == nil || hdr.RunID != "r1" {
		t.Errorf("header = %+v", hdr)
	}
	if len(entries) != 1 || entries[0].Destination != "/dst/ok.txt" {
		t.Errorf("entries = %+v, want the single valid entry", entries)
	}
	if malformed != 3 {
		t.Errorf("malformed = %d, want 3", malformed)
	}
}

func setupRollbackRun(t *testing.T) (string, string, []string) {
	t.Helper()
	destDir := t.TempDir()

	var dests []string
	for _, rel := range []string{"a.txt", "sub/b.txt", "sub/deep/c.txt"} {
		p := filepath.Join(destDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(rel), 0o644); err != nil {
			t.Fatal(err)
		}
		dests = append(dests, p)
	}

	path := filepath.Join(t.TempDir(), "manifest.jsonl")
	r, err := NewRecorder(path, Header{RunID: "rb", DestDir: destDir})
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range dests {
		if err := r.Append(Entry{Source: "/src/x", Destination: d, Size: 1}); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	return path, destDir, dests
}

func TestRollbackDeletesInReverseAndPrunes(t *testing.T) {
	path, destDir, dests := setupRollbackRun(t)

	report, err := Rollback(context.Background(), path, false, testLogger())
	if err != nil {
		t.Fatalf("Rollback() error: %v", err)
	}

	if len(report.Deleted) != 3 {
		t.Fatalf("deleted %d files, want 3", len(report.Deleted))
	}
	// Reverse of recorded order.
	if report.Deleted[0] != dests[2] || report.Deleted[2] != dests[0] {
		t.Errorf("deletion order = %v, want reverse of %v", report.Deleted, dests)
	}
	for _, d := range dests {
		if _, err := os.Stat(d); !os.IsNotExist(err) {
			t.Errorf("%s still exists after rollback", d)
		}
	}
	// Emptied subdirectories are pruned.
	if _, err := os.Stat(filepath.Join(destDir, "sub", "deep")); !os.IsNotExist(err) {
		t.Error("emptied directory was not pruned")
	}
}

func TestRollbackSecondRunDeletesNothing(t *testing.T) {
	path, _, _ := setupRollbackRun(t)

	if _, err := Rollback(context.Background(), path, false, testLogger()); err != nil {
		t.Fatal(err)
	}
	report, err := Rollback(context.Background(), path, false, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if len(report.Deleted) != 0 {
		t.Errorf("second rollback deleted %d files, want 0", len(report.Deleted))
	}
	if len(report.Missing) != 3 {
		t.Errorf("second rollback missing = %d, want 3", len(report.Missing))
	}
}

func TestRollbackDryRunTouchesNothing(t *testing.T) {
	path, _, dests := setupRollbackRun(t)

	report, err := Rollback(context.Background(), path, true, testLogger())
	if err != nil {
		t.Fatalf("Rollback() error: %v", err)
	}

	if len(report.Deleted) != 3 {
		t.Errorf("dry run should report all 3 deletions, got %d", len(report.Deleted))
	}
	for _, d := range dests {
		if _, err := os.Stat(d); err != nil {
			t.Errorf("dry run deleted %s", d)
		}
	}
}

func TestRollbackNeverTouchesSources(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "original.txt")
	if err := os.WriteFile(src, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}

	destDir := t.TempDir()
	dest := filepath.Join(destDir, "copy.txt")
	if err := os.WriteFile(dest, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "manifest.jsonl")
	r, err := NewRecorder(path, Header{RunID: "rb2"})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Append(Entry{Source: src, Destination: dest, Size: 7}); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := Rollback(context.Background(), path, false, testLogger()); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(src); err != nil {
		t.Error("rollback touched a source file")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("rollback did not delete the destination")
	}
}

func TestFileName(t *testing.T) {
	at := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	if got := FileName(at); got != "manifest_20260829_103000.jsonl" {
		t.Errorf("FileName = %q", got)
	}
}
