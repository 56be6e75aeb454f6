package index

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hazyhaar/purl/page"
)

// Format names one output of the publisher.
type Format string

const (
	CSV      Format = "csv"
	Markdown Format = "markdown"
	Readme   Format = "readme"
	HTML     Format = "html"
)

// ParseFormats accepts one format name or "all".
func ParseFormats(s string) ([]Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, Markdown, Readme, HTML:
		return []Format{f}, nil
	case "all", "":
		return []Format{CSV, Markdown, Readme, HTML}, nil
	}
	return nil, fmt.Errorf("index: unknown format %q (use csv, markdown, readme, html or all)", s)
}

// Targets are the output paths and README markers.
type Targets struct {
	CSV         string
	Markdown    string
	HTML        string
	Readme      string
	StartMarker string
	EndMarker   string
}

// Publisher writes index documents.
type Publisher struct {
	targets Targets
	baseURL string
	lang    string
	title   string
	logger  *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLang sets the lang attribute of the HTML index.
func WithLang(lang string) Option {
	return func(p *Publisher) { p.lang = lang }
}

// WithTitle sets the HTML index title.
func WithTitle(title string) Option {
	return func(p *Publisher) { p.title = title }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// NewPublisher creates a Publisher writing to t. baseURL prefixes the
// permanent links in the README section and the HTML index.
func NewPublisher(t Targets, baseURL string, opts ...Option) *Publisher {
	p := &Publisher{
		targets: t,
		baseURL: baseURL,
		lang:    page.DefaultLang,
		title:   "PURL",
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Publish renders pairs into every requested format. It stops at the
// first failing format and returns the paths written so far.
func (p *Publisher) Publish(pairs []Pair, formats ...Format) ([]string, error) {
	var written []string
	for _, f := range formats {
		path, err := p.publish(pairs, f)
		if err != nil {
			return written, err
		}
		p.logger.Info("index: written", "format", f, "path", path, "entries", len(pairs))
		written = append(written, path)
	}
	return written, nil
}

func (p *Publisher) publish(pairs []Pair, f Format) (string, error) {
	switch f {
	case CSV:
		data, err := RenderCSV(pairs)
		if err != nil {
			return "", err
		}
		return p.targets.CSV, WriteFile(p.targets.CSV, data)
	case Markdown:
		return p.targets.Markdown, WriteFile(p.targets.Markdown, RenderMarkdown(pairs))
	case HTML:
		data, err := RenderHTML(pairs, p.baseURL, p.lang, p.title)
		if err != nil {
			return "", err
		}
		return p.targets.HTML, WriteFile(p.targets.HTML, data)
	case Readme:
		doc, err := os.ReadFile(p.targets.Readme)
		if err != nil {
			return "", fmt.Errorf("index: read readme: %w", err)
		}
		out, err := ReplaceSection(doc, p.targets.StartMarker, p.targets.EndMarker,
			RenderReadmeSection(pairs, p.baseURL))
		if err != nil {
			return "", err
		}
		return p.targets.Readme, WriteFile(p.targets.Readme, out)
	}
	return "", fmt.Errorf("index: unknown format %q", f)
}
