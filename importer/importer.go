// Package importer adds new redirect entries to the registry, either from a
// column of a semicolon-separated export or as N fresh pages for one URL.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hazyhaar/purl/guard"
	"github.com/hazyhaar/purl/idgen"
	"github.com/hazyhaar/purl/registry"
)

// DefaultNames draws page names of 5 to 7 base-36 characters.
var DefaultNames = idgen.Suffixed(idgen.Base36(5, 7), ".html")

var (
	// ErrBadColumn is returned for a negative column index.
	ErrBadColumn = errors.New("importer: column index must be >= 0")

	// ErrBadCount is returned when add-rows is asked for fewer than one row.
	ErrBadCount = errors.New("importer: row count must be >= 1")
)

// ReadColumn extracts candidate URLs from a semicolon-separated source
// without header. Rows lacking the column, or whose trimmed value does not
// start with "http", are skipped and counted.
func ReadColumn(r io.Reader, column int) (urls []string, skipped int, err error) {
	if column < 0 {
		return nil, 0, ErrBadColumn
	}
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("importer: read source: %w", err)
		}
		if column >= len(rec) {
			skipped++
			continue
		}
		v := strings.TrimSpace(rec[column])
		if !strings.HasPrefix(v, "http") {
			skipped++
			continue
		}
		urls = append(urls, v)
	}
	return urls, skipped, nil
}

// Summary reports what an import did.
type Summary struct {
	Added            []registry.Entry
	SkippedDuplicate int
}

// Importer appends entries to one registry store.
type Importer struct {
	store  *registry.Store
	names  idgen.Generator
	logger *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithNames overrides the page-name generator.
func WithNames(gen idgen.Generator) Option {
	return func(im *Importer) { im.names = gen }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

// New creates an Importer for store.
func New(store *registry.Store, opts ...Option) *Importer {
	im := &Importer{
		store:  store,
		names:  DefaultNames,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(im)
	}
	return im
}

// Import appends one entry per URL not yet in the registry. A URL repeated
// inside urls is added once. All new rows go out in a single append.
func (im *Importer) Import(urls []string) (Summary, error) {
	var sum Summary
	pending := make(map[string]bool)
	queued := make(map[string]bool)

	for _, u := range urls {
		if im.store.HasURL(u) || queued[u] {
			sum.SkippedDuplicate++
			continue
		}
		queued[u] = true
		name, err := im.newName(pending)
		if err != nil {
			return Summary{}, err
		}
		pending[name] = true
		sum.Added = append(sum.Added, registry.Entry{File: name, URL: u})
	}

	if err := im.store.Append(sum.Added...); err != nil {
		return Summary{}, fmt.Errorf("importer: %w", err)
	}
	im.logger.Info("importer: import done",
		"added", len(sum.Added), "skipped_duplicate", sum.SkippedDuplicate, "registry", im.store.Path())
	return sum, nil
}

// AddRows appends count entries that all point at url, each under a fresh
// page name. Existing entries for url do not prevent the append.
func (im *Importer) AddRows(url string, count int) (Summary, error) {
	if count < 1 {
		return Summary{}, ErrBadCount
	}
	if err := guard.ValidateURL(url); err != nil {
		return Summary{}, fmt.Errorf("importer: %w", err)
	}

	var sum Summary
	pending := make(map[string]bool, count)
	for i := 0; i < count; i++ {
		name, err := im.newName(pending)
		if err != nil {
			return Summary{}, err
		}
		pending[name] = true
		sum.Added = append(sum.Added, registry.Entry{File: name, URL: url})
	}
	if err := im.store.Append(sum.Added...); err != nil {
		return Summary{}, fmt.Errorf("importer: %w", err)
	}
	im.logger.Info("importer: rows added", "url", url, "count", count, "registry", im.store.Path())
	return sum, nil
}

// newName draws a page name free in the store and in pending. Names that
// do not have the generated shape are rejected before anything is written.
func (im *Importer) newName(pending map[string]bool) (string, error) {
	name := im.store.NewFileName(im.names, func(n string) bool { return pending[n] })
	if err := guard.ValidateGeneratedName(name); err != nil {
		return "", fmt.Errorf("importer: %w", err)
	}
	return name, nil
}
