package dupe

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
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

func TestParseStrategy(t *testing.T) {
	for _, valid := range []string{"fast", "hash", "verify"} {
		if _, err := ParseStrategy(valid); err != nil {
			t.Errorf("ParseStrategy(%q) error: %v", valid, err)
		}
	}
	if _, err := ParseStrategy("paranoid"); err == nil {
		t.Error("expected unknown strategy to fail")
	}
}

func TestClassifyDestinationAbsent(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.txt", "content")

	c := NewClassifier(StrategyHash, 0, testLogger())
	v := c.Classify(src, filepath.Join(dir, "missing.txt"))

	if v.IsDuplicate {
		t.Fatal("missing destination must not be a duplicate")
	}
	if v.Reason != "destination absent" {
		t.Errorf("reason = %q", v.Reason)
	}
	if c.HashOps() != 0 {
		t.Errorf("no hashes should be computed, got %d", c.HashOps())
	}
}

func TestClassifySizeMismatchNeverHashes(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.txt", "short")
	dst := writeFile(t, dir, "dst.txt", "much longer content")

	for _, strategy := range []Strategy{StrategyFast, StrategyHash, StrategyVerify} {
		c := NewClassifier(strategy, 0, testLogger())
		v := c.Classify(src, dst)
		if v.IsDuplicate {
			t.Errorf("strategy %s: differing sizes classified as duplicate", strategy)
		}
		if v.Hash != "" {
			t.Errorf("strategy %s: hash computed despite size mismatch", strategy)
		}
		if c.HashOps() != 0 {
			t.Errorf("strategy %s: %d hash ops, want 0", strategy, c.HashOps())
		}
	}
}

func TestClassifyFastSameSize(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.txt", "aaaa")
	dst := writeFile(t, dir, "dst.txt", "bbbb") // same size, different bytes

	c := NewClassifier(StrategyFast, 0, testLogger())
	v := c.Classify(src, dst)

	if !v.IsDuplicate {
		t.Fatal("fast strategy should accept equal sizes as duplicate")
	}
	if c.HashOps() != 0 {
		t.Errorf("fast strategy must not hash, got %d ops", c.HashOps())
	}
}

func TestClassifyHashStrategy(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.txt", "identical bytes")
	same := writeFile(t, dir, "same.txt", "identical bytes")
	diff := writeFile(t, dir, "diff.txt", "divergent bytes") // same length

	c := NewClassifier(StrategyHash, 0, testLogger())

	v := c.Classify(src, same)
	if !v.IsDuplicate {
		t.Fatalf("identical content not detected: %s", v.Reason)
	}
	if v.Hash == "" {
		t.Error("verdict should carry the computed hash for reuse")
	}
	if v.ExistingPath != same {
		t.Errorf("ExistingPath = %q, want %q", v.ExistingPath, same)
	}

	v = c.Classify(src, diff)
	if v.IsDuplicate {
		t.Fatal("different content classified as duplicate")
	}
}

func TestClassifyHashCachePreventsRecomputation(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.txt", "cached content")
	dst := writeFile(t, dir, "dst.txt", "cached content")

	c := NewClassifier(StrategyHash, 0, testLogger())
	c.Classify(src, dst)
	first := c.HashOps()
	c.Classify(src, dst)

	if c.HashOps() != first {
		t.Errorf("second classification recomputed hashes: %d -> %d", first, c.HashOps())
	}
}

func TestClassifyVerifySmallFileSkipsContentCompare(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.txt", "same")
	dst := writeFile(t, dir, "dst.txt", "same")

	c := NewClassifier(StrategyVerify, 100<<20, testLogger())
	v := c.Classify(src, dst)

	if !v.IsDuplicate {
		t.Fatalf("verify strategy rejected identical small files: %s", v.Reason)
	}
	if v.Reason != "hash match" {
		t.Errorf("small file should stop at hash stage, reason = %q", v.Reason)
	}
}

func TestClassifyVerifyLargeFileComparesContent(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.bin", "large identical payload")
	dst := writeFile(t, dir, "dst.bin", "large identical payload")

	// Threshold below the file size forces the byte-for-byte stage.
	c := NewClassifier(StrategyVerify, 4, testLogger())
	v := c.Classify(src, dst)

	if !v.IsDuplicate {
		t.Fatalf("identical large files rejected: %s", v.Reason)
	}
	if v.Reason != "hash match confirmed by content comparison" {
		t.Errorf("reason = %q, want content-comparison confirmation", v.Reason)
	}
}

func TestClassifyUnreadableSourceFailsOpen(t *testing.T) {
	dir := t.TempDir()
	dst := writeFile(t, dir, "dst.txt", "data")
	missing := filepath.Join(dir, "gone.txt")

	c := NewClassifier(StrategyHash, 0, testLogger())
	v := c.Classify(missing, dst)

	if v.IsDuplicate {
		t.Fatal("classification errors must fail open toward re-copying")
	}
	if v.Reason == "" {
		t.Error("error verdict should carry a reason")
	}
}

func TestCompareContents(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "same bytes here")
	b := writeFile(t, dir, "b", "same bytes here")
	c := writeFile(t, dir, "c", "same bytes herE")

	same, err := compareContents(a, b)
	if err != nil || !same {
		t.Fatalf("compareContents(a, b) = %v, %v; want true, nil", same, err)
	}
	same, err = compareContents(a, c)
	if err != nil || same {
		t.Fatalf("compareContents(a, c) = %v, %v; want false, nil", same, err)
	}
}
