// Package resolve locates named resources across an ordered list of
// candidate storage locations.
//
// The shared medium is a set of network and local directories that are
// individually unreliable: a path may be unmounted, permission-denied, or
// simply missing the file. The resolver tries each candidate in order and
// stops at the first success. It is stateless between calls; stickiness
// (preferring the last path that worked) is the caller's responsibility.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"feedtrack/internal/logging"
)

// ErrNoPaths is returned when the candidate list is empty. This is a
// configuration error, not a retryable I/O failure, and is never wrapped
// into the per-path exhaustion error.
var ErrNoPaths = errors.New("no candidate paths configured")

// Resolver reads and writes named resources through an ordered path list.
type Resolver struct {
	logger *slog.Logger
}

// New creates a Resolver. A nil logger discards output.
func New(logger *slog.Logger) *Resolver {
	logger = logging.Default(logger)
	return &Resolver{logger: logger.With("component", "resolve")}
}

// ReadFirst tries each path in order and returns the content of the first
// readable resource along with the path that served it. Individual path
// failures are swallowed; only exhaustion of the whole list is an error,
// wrapping the last failure seen.
func (r *Resolver) ReadFirst(ctx context.Context, paths []string, name string) ([]byte, string, error) {
	if len(paths) == 0 {
		return nil, "", ErrNoPaths
	}

	var lastErr error
	for _, base := range paths {
		if base == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		full := filepath.Join(base, name)
		data, err := os.ReadFile(full)
		if err != nil {
			lastErr = err
			r.logger.Debug("read failed, trying next path", "path", full, "error", err)
			continue
		}
		return data, base, nil
	}

	if lastErr == nil {
		return nil, "", ErrNoPaths
	}
	return nil, "", fmt.Errorf("read %q from all %d candidate paths: %w", name, len(paths), lastErr)
}

// WriteFirst tries each path in order and writes the payload at the first
// location that accepts it, returning the path used. The write is atomic
// per location: temp file in the target directory, then rename.
func (r *Resolver) WriteFirst(ctx context.Context, paths []string, name string, payload []byte) (string, error) {
	if len(paths) == 0 {
		return "", ErrNoPaths
	}

	var lastErr error
	for _, base := range paths {
		if base == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if err := writeAtomic(base, name, payload); err != nil {
			lastErr = err
			r.logger.Debug("write failed, trying next path", "path", filepath.Join(base, name), "error", err)
			continue
		}
		return base, nil
	}

	if lastErr == nil {
		return "", ErrNoPaths
	}
	return "", fmt.Errorf("write %q to all %d candidate paths: %w", name, len(paths), lastErr)
}

// Exists reports the first path at which the resource is present.
func (r *Resolver) Exists(ctx context.Context, paths []string, name string) (string, bool) {
	for _, base := range paths {
		if base == "" {
			continue
		}
		if ctx.Err() != nil {
			return "", false
		}
		if _, err := os.Stat(filepath.Join(base, name)); err == nil {
			return base, true
		}
	}
	return "", false
}

// writeAtomic writes payload to base/name via temp-file-then-rename so a
// concurrent reader on the shared medium never observes a partial document.
func writeAtomic(base, name string, payload []byte) error {
	full := filepath.Join(base, name)

	tmp, err := os.CreateTemp(base, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, full); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
