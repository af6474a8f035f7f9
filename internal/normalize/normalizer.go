package normalize

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Transformation is the result of normalizing one export-relative path.
// CleanPath is non-empty exactly when Skip is false.
type Transformation struct {
	OriginalPath string
	CleanPath    string
	Explanation  string
	Skip         bool
}

// Normalizer maps export-relative paths to canonical destination paths,
// dropping the scaffolding segments the export format wraps around the
// real tree. It is a pure function of its pattern set; it keeps no state
// between calls.
type Normalizer struct {
	destDir string

	// Segments removed when they start with one of these tokens
	// (case-insensitive), e.g. "Takeout", "Takeout 2", "takeout-part-3".
	prefixTokens []string

	// Segments removed on exact (case-insensitive) match, e.g. "Drive".
	exactNames []string
}

// NewNormalizer creates a Normalizer targeting destDir with the given
// scaffolding patterns. Empty slices fall back to the standard export
// layout: "Takeout*" wrapper folders and the "Drive" content root.
func NewNormalizer(destDir string, prefixTokens, exactNames []string) *Normalizer {
	if len(prefixTokens) == 0 {
		prefixTokens = []string{"Takeout"}
	}
	if len(exactNames) == 0 {
		exactNames = []string{"Drive"}
	}
	return &Normalizer{
		destDir:      destDir,
		prefixTokens: append([]string(nil), prefixTokens...),
		exactNames:   append([]string(nil), exactNames...),
	}
}

// AddPrefixPattern registers an additional prefix token at runtime.
func (n *Normalizer) AddPrefixPattern(token string) {
	n.prefixTokens = append(n.prefixTokens, token)
}

// AddExactPattern registers an additional exact-match folder name at runtime.
func (n *Normalizer) AddExactPattern(name string) {
	n.exactNames = append(n.exactNames, name)
}

// Normalize maps an export-relative path to its canonical destination.
// Metadata sidecars skip immediately; otherwise every scaffolding segment
// is removed and the survivors are rejoined under destDir in their
// original order. Files are never renested under stripped folder names.
func (n *Normalizer) Normalize(relPath string, isMetadata bool) Transformation {
	if isMetadata {
		return Transformation{
			OriginalPath: relPath,
			Explanation:  fmt.Sprintf("skipped metadata file: %s", relPath),
			Skip:         true,
		}
	}

	segments := strings.Split(filepath.ToSlash(relPath), "/")

	var kept []string
	var removed []string
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if n.isScaffold(seg) {
			removed = append(removed, seg)
		} else {
			kept = append(kept, seg)
		}
	}

	if len(kept) == 0 {
		return Transformation{
			OriginalPath: relPath,
			Explanation:  fmt.Sprintf("all path parts removed: %s", strings.Join(removed, ", ")),
			Skip:         true,
		}
	}

	clean := filepath.Join(append([]string{n.destDir}, kept...)...)

	var explanation string
	if len(removed) > 0 {
		explanation = fmt.Sprintf("stripped %s from %s", strings.Join(removed, ", "), relPath)
	} else {
		explanation = fmt.Sprintf("no transformation needed: %s", relPath)
	}

	return Transformation{
		OriginalPath: relPath,
		CleanPath:    clean,
		Explanation:  explanation,
	}
}

// isScaffold reports whether one path segment exists only because of the
// export format.
func (n *Normalizer) isScaffold(segment string) bool {
	lower := strings.ToLower(segment)
	for _, tok := range n.prefixTokens {
		if strings.HasPrefix(lower, strings.ToLower(tok)) {
			return true
		}
	}
	for _, name := range n.exactNames {
		if lower == strings.ToLower(name) {
			return true
		}
	}
	return false
}
