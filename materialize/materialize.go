// Package materialize writes one redirect page per registry entry into the
// site directory.
//
// Pages are written only when their content differs from what is on disk,
// through a temp file and a rename, so re-running against an unchanged
// registry leaves every file byte-identical and untouched.
package materialize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hazyhaar/purl/guard"
	"github.com/hazyhaar/purl/page"
	"github.com/hazyhaar/purl/registry"
)

// Outcome is what happened to one page.
type Outcome string

const (
	Created   Outcome = "created"
	Updated   Outcome = "updated"
	Unchanged Outcome = "unchanged"
)

// Result counts page outcomes for one run.
type Result struct {
	Created   int
	Updated   int
	Unchanged int
	// SkippedNoURL counts registry rows with an empty URL.
	SkippedNoURL int
	// Failed lists pages that could not be written, with the cause.
	Failed map[string]error
}

// Materializer renders registry entries into a directory.
type Materializer struct {
	dir     string
	builder page.Builder
	logger  *slog.Logger
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithBuilder overrides the page builder.
func WithBuilder(b page.Builder) Option {
	return func(m *Materializer) { m.builder = b }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Materializer) { m.logger = l }
}

// New creates a Materializer writing into dir.
func New(dir string, opts ...Option) *Materializer {
	m := &Materializer{dir: dir, logger: slog.Default()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run materializes every entry of store in registry order. A page that
// cannot be written is recorded in Result.Failed and the run continues;
// only context cancellation stops it early.
func (m *Materializer) Run(ctx context.Context, store *registry.Store) (Result, error) {
	res := Result{Failed: make(map[string]error)}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return res, fmt.Errorf("materialize: mkdir %s: %w", m.dir, err)
	}

	for _, e := range store.Entries() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if e.URL == "" {
			m.logger.Warn("materialize: skipping entry without URL", "file", e.File)
			res.SkippedNoURL++
			continue
		}

		outcome, err := m.Write(e)
		if err != nil {
			m.logger.Error("materialize: write failed", "file", e.File, "error", err)
			res.Failed[e.File] = err
			continue
		}
		switch outcome {
		case Created:
			res.Created++
		case Updated:
			res.Updated++
		default:
			res.Unchanged++
		}
		m.logger.Debug("materialize: page", "file", e.File, "url", e.URL, "outcome", outcome)
	}

	m.logger.Info("materialize: done",
		"created", res.Created, "updated", res.Updated, "unchanged", res.Unchanged,
		"skipped_no_url", res.SkippedNoURL, "failed", len(res.Failed))
	return res, nil
}

// Write renders one entry and writes it if the file is absent or differs.
func (m *Materializer) Write(e registry.Entry) (Outcome, error) {
	if err := guard.ValidateFileName(e.File); err != nil {
		return "", err
	}
	path, err := guard.SafePath(m.dir, e.File)
	if err != nil {
		return "", err
	}
	return writeIfChanged(path, m.builder.Render(e.URL))
}

func writeIfChanged(path string, content []byte) (Outcome, error) {
	mode := fs.FileMode(0o644)
	existed := false

	old, err := os.ReadFile(path)
	switch {
	case err == nil:
		existed = true
		if bytes.Equal(old, content) {
			return Unchanged, nil
		}
		if fi, statErr := os.Stat(path); statErr == nil {
			mode = fi.Mode().Perm()
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("materialize: read %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".page-*")
	if err != nil {
		return "", fmt.Errorf("materialize: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("materialize: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("materialize: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return "", fmt.Errorf("materialize: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("materialize: rename: %w", err)
	}

	if existed {
		return Updated, nil
	}
	return Created, nil
}
