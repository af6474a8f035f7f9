package transfer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCopySmallFile(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.txt", "hello world")
	dst := filepath.Join(dir, "nested", "deep", "dst.txt")

	c := NewCopier(0, 0, testLogger())
	out := c.Copy(context.Background(), src, dst, false)

	if !out.Success {
		t.Fatalf("Copy failed: %v", out.Err)
	}
	if out.BytesCopied != 11 {
		t.Errorf("BytesCopied = %d, want 11", out.BytesCopied)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "hello world" {
		t.Fatalf("destination content = %q, %v", data, err)
	}
}

func TestCopyPreservesModTime(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.txt", "content")
	past := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	if err := os.Chtimes(src, past, past); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "dst.txt")

	out := NewCopier(0, 0, testLogger()).Copy(context.Background(), src, dst, false)
	if !out.Success {
		t.Fatalf("Copy failed: %v", out.Err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Truncate(time.Second).Equal(past) {
		t.Errorf("mod time = %v, want %v", info.ModTime(), past)
	}
}

func TestCopyChunkedForLargeFiles(t *testing.T) {
	dir := t.TempDir()
	payload := strings.Repeat("abcdefgh", 1024) // 8 KiB
	src := writeFile(t, dir, "big.bin", payload)
	dst := filepath.Join(dir, "big-copy.bin")

	// Threshold below the file size, tiny chunks: forces the chunked path.
	c := NewCopier(512, 1024, testLogger())
	out := c.Copy(context.Background(), src, dst, true)

	if !out.Success {
		t.Fatalf("Copy failed: %v", out.Err)
	}
	if out.BytesCopied != int64(len(payload)) {
		t.Errorf("BytesCopied = %d, want %d", out.BytesCopied, len(payload))
	}
	data, _ := os.ReadFile(dst)
	if string(data) != payload {
		t.Error("chunked copy corrupted content")
	}
}

func TestCopySameFileIsNoOp(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.txt", "content")

	out := NewCopier(0, 0, testLogger()).Copy(context.Background(), src, src, false)
	if !out.Success {
		t.Fatalf("same-file copy should succeed: %v", out.Err)
	}
	if out.BytesCopied != 0 {
		t.Errorf("same-file copy transferred %d bytes, want 0", out.BytesCopied)
	}
}

func TestCopyMissingSourceFails(t *testing.T) {
	dir := t.TempDir()
	out := NewCopier(0, 0, testLogger()).Copy(context.Background(),
		filepath.Join(dir, "gone.txt"), filepath.Join(dir, "dst.txt"), false)
	if out.Success {
		t.Fatal("copy of missing source should fail")
	}
	if _, err := os.Stat(filepath.Join(dir, "dst.txt")); !os.IsNotExist(err) {
		t.Error("failed copy left a destination file")
	}
}

func TestCopyCancelledChunkedLeavesNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	payload := strings.Repeat("x", 4096)
	src := writeFile(t, dir, "big.bin", payload)
	dst := filepath.Join(dir, "dst.bin")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCopier(256, 1024, testLogger())
	out := c.Copy(ctx, src, dst, false)

	if out.Success {
		t.Fatal("cancelled copy should not report success")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("cancelled copy left a partial destination file")
	}
}

func TestVerifyMismatchRemovesDestination(t *testing.T) {
	dir := t.TempDir()
	dst := writeFile(t, dir, "dst.txt", "truncated")

	c := NewCopier(0, 0, testLogger())
	err := c.verifyAfterCopy(dst, 9999) // forced mismatch

	if err == nil {
		t.Fatal("expected verification error")
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Error("verification failure must leave no file at the destination")
	}
}

func TestResolveCollision(t *testing.T) {
	dir := t.TempDir()

	// Free path passes through untouched.
	free := filepath.Join(dir, "report.pdf")
	got, renamed, err := ResolveCollision(free)
	if err != nil || renamed || got != free {
		t.Fatalf("ResolveCollision(free) = %q, %v, %v", got, renamed, err)
	}

	writeFile(t, dir, "report.pdf", "a")
	got, renamed, err = ResolveCollision(free)
	if err != nil || !renamed {
		t.Fatalf("ResolveCollision error: %v, renamed=%v", err, renamed)
	}
	if got != filepath.Join(dir, "report_1.pdf") {
		t.Errorf("first collision = %q, want report_1.pdf", got)
	}

	writeFile(t, dir, "report_1.pdf", "b")
	got, _, err = ResolveCollision(free)
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(dir, "report_2.pdf") {
		t.Errorf("second collision = %q, want report_2.pdf", got)
	}
}

func TestResolveCollisionNoExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README", "a")

	got, renamed, err := ResolveCollision(filepath.Join(dir, "README"))
	if err != nil || !renamed {
		t.Fatalf("ResolveCollision error: %v", err)
	}
	if got != filepath.Join(dir, "README_1") {
		t.Errorf("got %q, want README_1", got)
	}
}
