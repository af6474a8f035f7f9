package normalize

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeStripsScaffolding(t *testing.T) {
	n := NewNormalizer("/dest", nil, nil)

	tests := []struct {
		name string
		rel  string
		want string // relative to /dest; "" means skip
	}{
		{"wrapper and content root", "Takeout/Drive/Documents/report.pdf", "Documents/report.pdf"},
		{"numbered wrapper", "Takeout 2/Drive/notes.txt", "notes.txt"},
		{"case insensitive", "takeout-part-3/drive/a/b.txt", "a/b.txt"},
		{"no scaffolding", "Documents/report.pdf", "Documents/report.pdf"},
		{"deep nesting preserved", "Takeout/Drive/a/b/c/d.txt", "a/b/c/d.txt"},
		{"all segments scaffolding", "Takeout/Drive", ""},
		{"single wrapper only", "Takeout 1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.rel, false)
			if tt.want == "" {
				if !got.Skip {
					t.Fatalf("Normalize(%q) = %q, want skip", tt.rel, got.CleanPath)
				}
				if got.CleanPath != "" {
					t.Fatalf("skip result must have empty CleanPath, got %q", got.CleanPath)
				}
				return
			}
			if got.Skip {
				t.Fatalf("Normalize(%q) skipped: %s", tt.rel, got.Explanation)
			}
			want := filepath.Join("/dest", filepath.FromSlash(tt.want))
			if got.CleanPath != want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.rel, got.CleanPath, want)
			}
		})
	}
}

func TestNormalizeMetadataAlwaysSkips(t *testing.T) {
	n := NewNormalizer("/dest", nil, nil)
	got := n.Normalize("Takeout/Drive/doc.txt.json", true)
	if !got.Skip {
		t.Fatal("metadata file should always skip")
	}
	if !strings.Contains(got.Explanation, "metadata") {
		t.Errorf("explanation %q should mention metadata", got.Explanation)
	}
}

func TestNormalizePreservesSegmentOrder(t *testing.T) {
	n := NewNormalizer("/dest", nil, nil)
	got := n.Normalize("Takeout/alpha/Drive/beta/gamma.txt", false)
	want := filepath.Join("/dest", "alpha", "beta", "gamma.txt")
	if got.CleanPath != want {
		t.Errorf("kept segments out of order: got %q, want %q", got.CleanPath, want)
	}
}

func TestNormalizeRuntimePatterns(t *testing.T) {
	n := NewNormalizer("/dest", nil, nil)

	before := n.Normalize("Archive/doc.txt", false)
	if before.Skip {
		t.Fatal("Archive should be kept before pattern registration")
	}

	n.AddPrefixPattern("Archive")
	after := n.Normalize("Archive/doc.txt", false)
	want := filepath.Join("/dest", "doc.txt")
	if after.Skip || after.CleanPath != want {
		t.Errorf("after AddPrefixPattern: got %+v, want CleanPath %q", after, want)
	}

	n.AddExactPattern("Shared")
	got := n.Normalize("Shared/x.txt", false)
	if got.CleanPath != filepath.Join("/dest", "x.txt") {
		t.Errorf("AddExactPattern not applied: %+v", got)
	}
	// Exact patterns do not match prefixes.
	got = n.Normalize("SharedStuff/x.txt", false)
	if got.CleanPath != filepath.Join("/dest", "SharedStuff", "x.txt") {
		t.Errorf("exact pattern should not prefix-match: %+v", got)
	}
}

func TestNormalizeInvariantCleanPathIffNotSkip(t *testing.T) {
	n := NewNormalizer("/dest", nil, nil)
	paths := []string{
		"Takeout/Drive/a.txt",
		"Takeout/Drive",
		"plain.txt",
		"Takeout 9/Drive/b/c.txt",
	}
	for _, p := range paths {
		for _, meta := range []bool{true, false} {
			got := n.Normalize(p, meta)
			if got.Skip != (got.CleanPath == "") {
				t.Errorf("Normalize(%q, meta=%v): Skip=%v but CleanPath=%q", p, meta, got.Skip, got.CleanPath)
			}
		}
	}
}
