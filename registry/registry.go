// Package registry is the redirect registry: the CSV file mapping generated
// page names to target URLs. It is the single source of truth every other
// purl tool reads from.
//
// On disk the registry is a comma-separated file with a "File,URL" header
// and one entry per line. Normal operation only appends; the one full
// rewrite (WriteFile) goes through a temp file and a rename.
package registry

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/purl/guard"
	"github.com/hazyhaar/purl/idgen"
)

// Header is the registry's column header.
var Header = []string{"File", "URL"}

var (
	// ErrMissingColumn is returned when the header lacks a File or URL column.
	ErrMissingColumn = errors.New("registry: header must contain File and URL columns")

	// ErrMissingFile is returned for a row with an empty File value.
	ErrMissingFile = errors.New("registry: row has no file name")

	// ErrDuplicateFile is returned when a file name appears twice.
	ErrDuplicateFile = errors.New("registry: duplicate file name")

	// ErrEmptyURL is returned when appending an entry without a URL.
	ErrEmptyURL = errors.New("registry: entry has no URL")
)

// ParseError reports a malformed registry row.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("registry: line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Entry maps one generated page name to its target URL.
type Entry struct {
	File string
	URL  string
}

// Store is an in-memory view of the registry file, loaded once per
// invocation and passed explicitly to the tools that need it.
type Store struct {
	path    string
	entries []Entry
	files   map[string]int
	urls    map[string]struct{}
}

// Open loads the registry at path. A missing file yields an empty store;
// the first Append creates it with a header.
func Open(path string) (*Store, error) {
	s := newStore(path)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", path, err)
	}
	defer f.Close()

	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, e := range entries {
		s.add(e)
	}
	return s, nil
}

func newStore(path string) *Store {
	return &Store{
		path:  path,
		files: make(map[string]int),
		urls:  make(map[string]struct{}),
	}
}

// Parse reads registry rows from r. The header is matched by column name,
// case-insensitively. When URL is the last column, extra unquoted fields on
// a row are joined back into the URL: older tools wrote URLs containing
// commas without quoting them.
func Parse(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: read header: %w", err)
	}
	fileCol, urlCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "file":
			fileCol = i
		case "url":
			urlCol = i
		}
	}
	if fileCol < 0 || urlCol < 0 {
		return nil, ErrMissingColumn
	}
	urlIsLast := urlCol == len(header)-1

	var entries []Entry
	seen := make(map[string]bool)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if isBlank(rec) {
			continue
		}

		var e Entry
		if fileCol < len(rec) {
			e.File = strings.TrimSpace(rec[fileCol])
		}
		if urlCol < len(rec) {
			if urlIsLast {
				e.URL = strings.TrimSpace(strings.Join(rec[urlCol:], ","))
			} else {
				e.URL = strings.TrimSpace(rec[urlCol])
			}
		}

		if e.File == "" {
			return nil, &ParseError{Line: line, Err: ErrMissingFile}
		}
		if err := guard.ValidateFileName(e.File); err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		if seen[e.File] {
			return nil, &ParseError{Line: line, Err: fmt.Errorf("%w: %s", ErrDuplicateFile, e.File)}
		}
		seen[e.File] = true
		entries = append(entries, e)
	}
	return entries, nil
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func (s *Store) add(e Entry) {
	s.files[e.File] = len(s.entries)
	s.entries = append(s.entries, e)
	if e.URL != "" {
		s.urls[e.URL] = struct{}{}
	}
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Len returns the number of entries.
func (s *Store) Len() int { return len(s.entries) }

// Entries returns a copy of all entries in registry order.
func (s *Store) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Lookup returns the entry for a page name.
func (s *Store) Lookup(file string) (Entry, bool) {
	i, ok := s.files[file]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// HasFile reports whether a page name is already registered.
func (s *Store) HasFile(file string) bool {
	_, ok := s.files[file]
	return ok
}

// HasURL reports whether url is already registered (exact string match).
func (s *Store) HasURL(url string) bool {
	_, ok := s.urls[url]
	return ok
}

// URLs returns the distinct non-empty URLs in registry order.
func (s *Store) URLs() []string {
	seen := make(map[string]bool, len(s.urls))
	out := make([]string, 0, len(s.urls))
	for _, e := range s.entries {
		if e.URL == "" || seen[e.URL] {
			continue
		}
		seen[e.URL] = true
		out = append(out, e.URL)
	}
	return out
}

// NewFileName draws page names from gen until one is free in the store
// and not rejected by any of the extra membership tests.
func (s *Store) NewFileName(gen idgen.Generator, taken ...func(string) bool) string {
	return idgen.Unique(gen, func(name string) bool {
		if s.HasFile(name) {
			return true
		}
		for _, t := range taken {
			if t(name) {
				return true
			}
		}
		return false
	})
}

// Append validates entries and appends them to the registry file, creating
// it (with header) when absent. Existing lines are never rewritten. On a
// validation error nothing is written.
func (s *Store) Append(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := make(map[string]bool, len(entries))
	for _, e := range entries {
		if err := guard.ValidateFileName(e.File); err != nil {
			return err
		}
		if e.URL == "" {
			return fmt.Errorf("%w: %s", ErrEmptyURL, e.File)
		}
		if s.HasFile(e.File) || batch[e.File] {
			return fmt.Errorf("%w: %s", ErrDuplicateFile, e.File)
		}
		batch[e.File] = true
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("registry: mkdir: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("registry: open for append: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	prefix, err := appendPrefix(f)
	if err != nil {
		return err
	}
	buf.WriteString(prefix)
	w := csv.NewWriter(&buf)
	for _, e := range entries {
		if err := w.Write([]string{e.File, e.URL}); err != nil {
			return fmt.Errorf("registry: encode: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("registry: encode: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("registry: append: %w", err)
	}

	for _, e := range entries {
		s.add(e)
	}
	return nil
}

// appendPrefix returns what has to precede new rows: the header for an
// empty file, a newline when the last line is unterminated.
func appendPrefix(f *os.File) (string, error) {
	fi, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("registry: stat: %w", err)
	}
	if fi.Size() == 0 {
		return strings.Join(Header, ",") + "\n", nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, fi.Size()-1); err != nil {
		return "", fmt.Errorf("registry: read tail: %w", err)
	}
	if last[0] != '\n' {
		return "\n", nil
	}
	return "", nil
}

// WriteFile replaces the file at path with header plus entries, atomically.
func WriteFile(path string, entries []Entry) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.Write([]string{e.File, e.URL}); err != nil {
			return fmt.Errorf("registry: encode: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("registry: encode: %w", err)
	}
	return atomicWrite(path, buf.Bytes())
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("registry: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".registry-*")
	if err != nil {
		return fmt.Errorf("registry: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("registry: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("registry: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("registry: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("registry: chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("registry: rename: %w", err)
	}
	return nil
}
