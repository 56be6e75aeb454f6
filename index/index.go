// Package index regenerates the human-readable lists of published pages.
//
// Pairs come either from the registry or from a scan of the site
// directory. Every output is rebuilt from scratch and overwritten in full.
package index

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/purl/page"
	"github.com/hazyhaar/purl/registry"
)

var (
	// ErrNoURL is logged when a scanned page embeds no absolute URL.
	ErrNoURL = errors.New("index: no URL in page")
	// ErrMissingMarkers means the README lacks the start or end marker.
	ErrMissingMarkers = errors.New("index: section markers not found")
)

// Pair is one published page and its target.
type Pair struct {
	File string
	URL  string
}

// FromRegistry returns the registry entries that have a URL, in order.
func FromRegistry(store *registry.Store) []Pair {
	var out []Pair
	for _, e := range store.Entries() {
		if e.URL == "" {
			continue
		}
		out = append(out, Pair{File: e.File, URL: e.URL})
	}
	return out
}

// Scan reads every *.html file directly under dir, except the reserved
// names, and pairs it with the first absolute URL found in its content.
// Files without a URL are logged and skipped. Results are sorted by name.
func Scan(dir string, reserved []string, logger *slog.Logger) ([]Pair, error) {
	if logger == nil {
		logger = slog.Default()
	}
	skip := make(map[string]bool, len(reserved))
	for _, r := range reserved {
		skip[r] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("index: scan %s: %w", dir, err)
	}

	var out []Pair
	for _, de := range entries {
		name := de.Name()
		if !de.Type().IsRegular() || filepath.Ext(name) != ".html" || skip[name] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("index: read %s: %w", name, err)
		}
		url := extractURL(data)
		if url == "" {
			logger.Warn("index: page skipped", "file", name, "error", ErrNoURL)
			continue
		}
		out = append(out, Pair{File: name, URL: url})
	}
	return out, nil
}

// extractURL returns the first absolute URL in a page. Pages whose target
// the pattern misses (mixed-case scheme, for instance) fall back to the
// parsed redirect targets.
func extractURL(data []byte) string {
	if u := page.FirstURL(data); u != "" {
		return u
	}
	t, err := page.Inspect(data)
	if err != nil {
		return ""
	}
	if t.Script != "" {
		return t.Script
	}
	return t.Refresh
}

// RenderCSV renders pairs as a CSV document with a File,URL header.
func RenderCSV(pairs []Pair) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(registry.Header); err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if err := w.Write([]string{p.File, p.URL}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("index: csv: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderMarkdown renders pairs as "[file](url)" paragraphs.
func RenderMarkdown(pairs []Pair) []byte {
	var buf bytes.Buffer
	for _, p := range pairs {
		fmt.Fprintf(&buf, "[%s](%s)\n\n", p.File, p.URL)
	}
	return buf.Bytes()
}

// RenderReadmeSection renders the body placed between the README markers.
// Each pair becomes a bullet with the permanent link, followed by a line
// with the target link.
func RenderReadmeSection(pairs []Pair, baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	lines := make([]string, 0, 2*len(pairs))
	for _, p := range pairs {
		purl := base + "/" + p.File
		lines = append(lines,
			fmt.Sprintf("* [%s](%s) ->  ", purl, purl),
			fmt.Sprintf("[%s](%s)", p.URL, p.URL))
	}
	return strings.Join(lines, "\n")
}

// ReplaceSection replaces everything from the first start marker to the
// last end marker in doc with start, body and end on their own lines.
// Text outside the markers is kept byte for byte.
func ReplaceSection(doc []byte, start, end, body string) ([]byte, error) {
	s := string(doc)
	i := strings.Index(s, start)
	j := strings.LastIndex(s, end)
	if i < 0 || j < 0 || j < i+len(start) {
		return nil, fmt.Errorf("%w: %q ... %q", ErrMissingMarkers, start, end)
	}

	var b strings.Builder
	b.WriteString(s[:i])
	b.WriteString(start)
	b.WriteString("\n")
	if body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	b.WriteString(end)
	b.WriteString(s[j+len(end):])
	return []byte(b.String()), nil
}

// WriteFile replaces path with data through a temp file and a rename,
// creating parent directories as needed.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".index-*")
	if err != nil {
		return fmt.Errorf("index: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("index: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("index: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("index: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("index: rename: %w", err)
	}
	return nil
}
