// Package probe issues the single GET used to decide whether a redirect
// target is reachable.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hazyhaar/purl/guard"
)

// Result is the outcome of one probe.
type Result struct {
	StatusCode int
	Status     string
	// FinalURL is the URL after redirects.
	FinalURL string
	Elapsed  time.Duration
}

// Config configures the prober.
type Config struct {
	Timeout      time.Duration // per request. Default: 10s.
	MaxRedirects int           // Default: 10.
	UserAgent    string
	// URLValidator runs before the request and on every redirect hop.
	// Default: guard.ValidateURL.
	URLValidator func(string) error
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 10
	}
	if c.UserAgent == "" {
		c.UserAgent = "purl-checker/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = guard.ValidateURL
	}
}

// Prober performs reachability GETs.
type Prober struct {
	client *http.Client
	config Config
}

// New creates a Prober that follows redirects up to cfg.MaxRedirects,
// validating each hop.
func New(cfg Config) *Prober {
	cfg.defaults()
	validate := cfg.URLValidator
	maxRedirects := cfg.MaxRedirects
	return &Prober{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Get fetches url. A non-2xx final status is returned as an error
// together with the populated Result.
func (p *Prober) Get(ctx context.Context, url string) (*Result, error) {
	if err := p.config.URLValidator(url); err != nil {
		return nil, fmt.Errorf("URL rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", p.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()
	// Drain a bounded amount so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, guard.MaxProbeBody))

	res := &Result{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		FinalURL:   resp.Request.URL.String(),
		Elapsed:    time.Since(start),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return res, fmt.Errorf("http %s", resp.Status)
	}
	return res, nil
}
