package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrVerifyFailed marks copy failures caught by post-copy verification,
// as opposed to I/O failures during the copy itself.
var ErrVerifyFailed = errors.New("verification failed")

// Outcome is the result of one copy attempt.
type Outcome struct {
	Success     bool
	BytesCopied int64
	FinalPath   string // where the bytes actually landed (differs from the request after a collision rename)
	Renamed     bool   // destination was renamed to avoid clobbering a different file
	Err         error
}

// Copier moves file content to its destination, streaming large files in
// bounded chunks and optionally verifying the result.
type Copier struct {
	chunkSize          int64
	largeFileThreshold int64
	logger             *slog.Logger
}

// NewCopier creates a Copier. Non-positive sizes select the defaults
// (1 MiB chunks, 100 MB large-file threshold).
func NewCopier(chunkSize, largeFileThreshold int64, logger *slog.Logger) *Copier {
	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}
	if largeFileThreshold <= 0 {
		largeFileThreshold = 100 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Copier{
		chunkSize:          chunkSize,
		largeFileThreshold: largeFileThreshold,
		logger:             logger,
	}
}

// Copy copies src to dst, creating parent directories as needed. When dst
// already refers to the same underlying file as src the copy is a no-op
// success. With verify set, sizes are recompared after the copy and a
// mismatch deletes the destination: a failed copy never leaves a partial
// file behind.
func (c *Copier) Copy(ctx context.Context, src, dst string, verify bool) Outcome {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return Outcome{FinalPath: dst, Err: fmt.Errorf("stat source: %w", err)}
	}

	if dstInfo, err := os.Stat(dst); err == nil {
		if os.SameFile(srcInfo, dstInfo) {
			return Outcome{Success: true, FinalPath: dst}
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Outcome{FinalPath: dst, Err: fmt.Errorf("creating destination directory: %w", err)}
	}

	var copied int64
	if srcInfo.Size() > c.largeFileThreshold {
		copied, err = c.chunkedCopy(ctx, src, dst)
	} else {
		copied, err = c.wholeCopy(src, dst)
	}
	if err != nil {
		// Never leave a truncated destination.
		if rmErr := os.Remove(dst); rmErr != nil && !os.IsNotExist(rmErr) {
			c.logger.Warn("failed to remove partial destination", "path", dst, "error", rmErr)
		}
		return Outcome{FinalPath: dst, Err: err}
	}

	if err := copyFileTimes(src, dst, srcInfo); err != nil {
		c.logger.Warn("failed to copy file metadata", "path", dst, "error", err)
	}

	if verify {
		if err := c.verifyAfterCopy(dst, srcInfo.Size()); err != nil {
			return Outcome{FinalPath: dst, Err: err}
		}
	}

	return Outcome{Success: true, BytesCopied: copied, FinalPath: dst}
}

// wholeCopy copies a file in one streaming pass.
func (c *Copier) wholeCopy(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("creating destination: %w", err)
	}

	n, err := io.Copy(out, in)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("copying data: %w", err)
	}
	return n, nil
}

// chunkedCopy copies a large file in fixed-size chunks, checking for
// cancellation between chunks so a long copy can be abandoned cleanly.
func (c *Copier) chunkedCopy(ctx context.Context, src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("creating destination: %w", err)
	}

	var total int64
	buf := make([]byte, c.chunkSize)
	for {
		select {
		case <-ctx.Done():
			_ = out.Close()
			return total, ctx.Err()
		default:
		}

		n, readErr := in.Read(buf)
		if n > 0 {
			w, writeErr := out.Write(buf[:n])
			total += int64(w)
			if writeErr != nil {
				_ = out.Close()
				return total, fmt.Errorf("writing chunk: %w", writeErr)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = out.Close()
			return total, fmt.Errorf("reading chunk: %w", readErr)
		}
	}

	if err := out.Close(); err != nil {
		return total, fmt.Errorf("closing destination: %w", err)
	}
	return total, nil
}

// verifyAfterCopy recompares the destination size against the expected
// source size. On any mismatch or stat failure the destination is deleted
// so a bad copy is indistinguishable from no copy.
func (c *Copier) verifyAfterCopy(dst string, wantSize int64) error {
	dstInfo, err := os.Stat(dst)
	if err == nil && dstInfo.Size() == wantSize {
		return nil
	}

	if rmErr := os.Remove(dst); rmErr != nil && !os.IsNotExist(rmErr) {
		c.logger.Warn("failed to remove unverified destination", "path", dst, "error", rmErr)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}
	return fmt.Errorf("%w: size mismatch after copy: source=%d dest=%d", ErrVerifyFailed, wantSize, dstInfo.Size())
}

// copyFileTimes mirrors the source's permission bits and modification time
// onto the destination.
func copyFileTimes(src, dst string, srcInfo os.FileInfo) error {
	if err := os.Chmod(dst, srcInfo.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, srcInfo.ModTime(), srcInfo.ModTime())
}

// ResolveCollision returns the first free destination path, appending an
// incrementing numeric suffix before the extension: name.ext, name_1.ext,
// name_2.ext, ... It reports whether a rename was needed.
func ResolveCollision(dst string) (string, bool, error) {
	if _, err := os.Stat(dst); os.IsNotExist(err) {
		return dst, false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("stat destination: %w", err)
	}

	dir := filepath.Dir(dst)
	base := filepath.Base(dst)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, true, nil
		} else if err != nil {
			return "", false, fmt.Errorf("stat candidate: %w", err)
		}
	}
}
