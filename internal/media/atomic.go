package media

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// errTransform wraps failures of the caller's write function so callers can
// tell a bad payload from a failing disk.
type errTransform struct{ err error }

func (e *errTransform) Error() string { return e.err.Error() }
func (e *errTransform) Unwrap() error { return e.err }

func isTransformErr(err error) bool {
	var te *errTransform
	return errors.As(err, &te)
}

// SwapWriter replaces a file's content by writing a sibling temporary file
// and renaming it over the target. Readers of the target see the old or the
// new content, never a mix.
type SwapWriter struct {
	// BeforeRename, when set, runs after the new content is fully written
	// and closed but before it replaces the target.
	BeforeRename func(tmpPath, target string)
}

// Swap runs write against a fresh temporary file and then atomically
// replaces target with it, returning the new length. If write or any step
// before the rename fails, the temporary file is removed and target is left
// as it was.
func (s *SwapWriter) Swap(target string, write func(io.Writer) error) (n int64, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".swap-*")
	if err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	cw := &countingWriter{w: tmp}
	bw := bufio.NewWriter(cw)
	if err := write(bw); err != nil {
		return 0, &errTransform{err: err}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("flush temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return 0, fmt.Errorf("chmod temp: %w", err)
	}

	if s != nil && s.BeforeRename != nil {
		s.BeforeRename(tmpPath, target)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return 0, fmt.Errorf("rename: %w", err)
	}
	success = true
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
