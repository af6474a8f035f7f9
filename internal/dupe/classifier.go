package dupe

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// Strategy selects how rigorously candidate files are compared.
type Strategy string

const (
	// StrategyFast treats equal size as duplicate. Fastest, accepts
	// false positives.
	StrategyFast Strategy = "fast"
	// StrategyHash compares streaming SHA-256 digests.
	StrategyHash Strategy = "hash"
	// StrategyVerify runs hash, then byte-for-byte comparison for files
	// above the large-file threshold.
	StrategyVerify Strategy = "verify"
)

// ParseStrategy converts a CLI flag value into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyFast, StrategyHash, StrategyVerify:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown duplicate strategy %q (want fast, hash, or verify)", s)
}

// Verdict is the outcome of classifying a (source, destination) pair.
type Verdict struct {
	IsDuplicate  bool
	Reason       string
	ExistingPath string // set when a duplicate was found
	Hash         string // source SHA-256 when one was computed, reusable by callers
}

const hashChunkSize = 64 * 1024

// Classifier decides whether a candidate source file is redundant with a
// file already at its destination. Hashes are cached per run keyed by
// (path, mtime) so a file is never digested twice.
type Classifier struct {
	strategy           Strategy
	largeFileThreshold int64
	logger             *slog.Logger

	hashCache map[hashKey]string

	// hashOps counts full-file hash computations, exposed for tests
	// asserting the size-first short-circuit.
	hashOps atomic.Int64
}

type hashKey struct {
	path  string
	mtime int64
}

// NewClassifier creates a Classifier with the given strategy.
// largeFileThreshold <= 0 selects the 100 MB default.
func NewClassifier(strategy Strategy, largeFileThreshold int64, logger *slog.Logger) *Classifier {
	if largeFileThreshold <= 0 {
		largeFileThreshold = 100 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		strategy:           strategy,
		largeFileThreshold: largeFileThreshold,
		logger:             logger,
		hashCache:          make(map[hashKey]string),
	}
}

// Classify reports whether sourcePath duplicates the file at destPath.
// I/O failures never fail the run: they classify as not-duplicate so the
// file is recopied rather than silently dropped.
func (c *Classifier) Classify(sourcePath, destPath string) Verdict {
	destInfo, err := os.Stat(destPath)
	if os.IsNotExist(err) {
		return Verdict{Reason: "destination absent"}
	}
	if err != nil {
		return Verdict{Reason: fmt.Sprintf("stat destination failed: %v", err)}
	}

	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		return Verdict{Reason: fmt.Sprintf("stat source failed: %v", err)}
	}

	if srcInfo.Size() != destInfo.Size() {
		return Verdict{
			Reason: fmt.Sprintf("different sizes: source=%d dest=%d", srcInfo.Size(), destInfo.Size()),
		}
	}

	switch c.strategy {
	case StrategyFast:
		return Verdict{
			IsDuplicate:  true,
			Reason:       "same size (fast mode)",
			ExistingPath: destPath,
		}

	case StrategyHash:
		return c.classifyByHash(sourcePath, destPath, srcInfo, destInfo)

	case StrategyVerify:
		v := c.classifyByHash(sourcePath, destPath, srcInfo, destInfo)
		if !v.IsDuplicate || srcInfo.Size() <= c.largeFileThreshold {
			return v
		}
		same, err := compareContents(sourcePath, destPath)
		if err != nil {
			return Verdict{Reason: fmt.Sprintf("content comparison failed: %v", err), Hash: v.Hash}
		}
		if !same {
			// Hash collision territory. Vanishingly rare, but this
			// strategy exists for exactly this check.
			c.logger.Warn("hash match but content mismatch", "source", sourcePath, "dest", destPath)
			return Verdict{Reason: "hash match but contents differ", Hash: v.Hash}
		}
		v.Reason = "hash match confirmed by content comparison"
		return v

	default:
		return Verdict{Reason: fmt.Sprintf("unknown strategy %q", c.strategy)}
	}
}

// HashOps returns how many full-file hash computations have run.
func (c *Classifier) HashOps() int64 {
	return c.hashOps.Load()
}

func (c *Classifier) classifyByHash(sourcePath, destPath string, srcInfo, destInfo os.FileInfo) Verdict {
	srcHash, err := c.fileHash(sourcePath, srcInfo.ModTime())
	if err != nil {
		return Verdict{Reason: fmt.Sprintf("hashing source failed: %v", err)}
	}
	destHash, err := c.fileHash(destPath, destInfo.ModTime())
	if err != nil {
		return Verdict{Reason: fmt.Sprintf("hashing destination failed: %v", err), Hash: srcHash}
	}

	if srcHash != destHash {
		return Verdict{Reason: "hash mismatch", Hash: srcHash}
	}
	return Verdict{
		IsDuplicate:  true,
		Reason:       "hash match",
		ExistingPath: destPath,
		Hash:         srcHash,
	}
}

// fileHash returns the cached or freshly computed SHA-256 of a file,
// streamed in fixed-size chunks.
func (c *Classifier) fileHash(path string, mtime time.Time) (string, error) {
	key := hashKey{path: path, mtime: mtime.UnixNano()}
	if h, ok := c.hashCache[key]; ok {
		return h, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	c.hashOps.Add(1)

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}

	digest := hex.EncodeToString(h.Sum(nil))
	c.hashCache[key] = digest
	return digest, nil
}

// compareContents streams both files and reports byte-for-byte equality.
func compareContents(pathA, pathB string) (bool, error) {
	fa, err := os.Open(pathA)
	if err != nil {
		return false, err
	}
	defer fa.Close()

	fb, err := os.Open(pathB)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	bufA := make([]byte, hashChunkSize)
	bufB := make([]byte, hashChunkSize)
	for {
		nA, errA := io.ReadFull(fa, bufA)
		nB, errB := io.ReadFull(fb, bufB)
		if nA != nB || !bytes.Equal(bufA[:nA], bufB[:nB]) {
			return false, nil
		}
		if errA == io.EOF || errA == io.ErrUnexpectedEOF {
			return errB == io.EOF || errB == io.ErrUnexpectedEOF, nil
		}
		if errA != nil {
			return false, errA
		}
		if errB != nil {
			return false, errB
		}
	}
}
