package manifest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record kinds, tagged on every manifest line so a reader can dispatch
// without guessing.
const (
	KindHeader = "header"
	KindEntry  = "entry"
)

// Header is the first line of a run manifest, identifying the run that
// produced the entries after it.
type Header struct {
	Kind      string    `json:"kind"`
	RunID     string    `json:"run_id"`
	Started   time.Time `json:"started"`
	SourceDir string    `json:"source_dir"`
	DestDir   string    `json:"dest_dir"`
	Strategy  string    `json:"strategy"`
}

// Entry records one successful file transfer. Entries are append-only and
// never rewritten; the manifest is the durable audit log and the sole
// input rollback needs.
type Entry struct {
	Kind        string    `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256,omitempty"`
	Renamed     bool      `json:"renamed,omitempty"`
}

// Recorder appends manifest lines to a single file. Single writer only:
// the orchestrator drives transfers sequentially.
type Recorder struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

// NewRecorder creates the manifest file and writes the run header.
// The parent directory is created if needed.
func NewRecorder(path string, hdr Header) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating manifest directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating manifest: %w", err)
	}

	r := &Recorder{path: path, f: f, w: bufio.NewWriter(f)}

	hdr.Kind = KindHeader
	if err := r.writeLine(hdr); err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

// Path returns the manifest file location.
func (r *Recorder) Path() string {
	return r.path
}

// Append writes one entry line. The line is flushed to the OS immediately
// so a crash mid-run loses at most the in-flight entry.
func (r *Recorder) Append(e Entry) error {
	e.Kind = KindEntry
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return r.writeLine(e)
}

func (r *Recorder) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding manifest line: %w", err)
	}
	if _, err := r.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing manifest line: %w", err)
	}
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("flushing manifest: %w", err)
	}
	return nil
}

// Close syncs and closes the manifest file.
func (r *Recorder) Close() error {
	if err := r.w.Flush(); err != nil {
		_ = r.f.Close()
		return fmt.Errorf("flushing manifest: %w", err)
	}
	if err := r.f.Sync(); err != nil {
		_ = r.f.Close()
		return fmt.Errorf("syncing manifest: %w", err)
	}
	return r.f.Close()
}

// Load reads a manifest file, returning its header (if present), the
// recorded entries in order, and the count of malformed lines skipped.
// A malformed line never aborts the load.
func Load(path string) (*Header, []Entry, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	var hdr *Header
	var entries []Entry
	malformed := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var tagged struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(line, &tagged); err != nil {
			malformed++
			continue
		}

		switch tagged.Kind {
		case KindHeader:
			var h Header
			if err := json.Unmarshal(line, &h); err != nil {
				malformed++
				continue
			}
			hdr = &h
		case KindEntry:
			var e Entry
			if err := json.Unmarshal(line, &e); err != nil || e.Destination == "" {
				malformed++
				continue
			}
			entries = append(entries, e)
		default:
			malformed++
		}
	}
	if err := scanner.Err(); err != nil {
		return hdr, entries, malformed, fmt.Errorf("reading manifest: %w", err)
	}

	return hdr, entries, malformed, nil
}

// FileName builds the timestamped manifest name used for each run.
func FileName(at time.Time) string {
	return "manifest_" + at.Format("20060102_150405") + ".jsonl"
}
