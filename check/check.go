// Package check verifies that the registry, the generated pages and the
// redirect targets are still consistent.
//
// Local mode reads every page named in the registry and asserts it embeds
// the registered URL. Remote mode GETs every distinct registered URL, one at
// a time with a fixed pause between requests. Both modes accumulate
// failures instead of stopping at the first one, and both feed the same
// notification step.
package check

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hazyhaar/purl/check/internal/probe"
	"github.com/hazyhaar/purl/guard"
	"github.com/hazyhaar/purl/idgen"
	"github.com/hazyhaar/purl/notify"
	"github.com/hazyhaar/purl/page"
	"github.com/hazyhaar/purl/registry"
)

// Mode selects what a check run queries.
type Mode string

const (
	Local  Mode = "local"
	Remote Mode = "remote"
)

// ParseModes turns "local", "remote" or "both" into modes.
func ParseModes(s string) ([]Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return []Mode{Local}, nil
	case "remote":
		return []Mode{Remote}, nil
	case "both", "all", "":
		return []Mode{Local, Remote}, nil
	}
	return nil, fmt.Errorf("check: unknown mode %q (use local, remote or both)", s)
}

// DefaultDelay is the pause between two remote requests.
const DefaultDelay = time.Second

// notifyTimeout bounds the failure notification, which still goes out when
// the run itself was interrupted.
const notifyTimeout = 10 * time.Second

// Failure is one failed check.
type Failure struct {
	File   string // empty in remote mode
	URL    string
	Reason string
}

// Report is the outcome of one mode of one run.
type Report struct {
	RunID    string
	Mode     Mode
	Checked  int
	Failures []Failure
	Duration time.Duration
}

// URLs returns the failing URLs in check order.
func (r Report) URLs() []string {
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.URL
	}
	return out
}

// RemoteConfig tunes remote probing.
type RemoteConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
	// BlockPrivate rejects targets resolving to private or loopback addresses.
	BlockPrivate bool
}

// Checker runs consistency checks against one site directory.
type Checker struct {
	dir      string
	delay    time.Duration
	strict   bool
	remote   RemoteConfig
	notifier notify.Notifier
	logger   *slog.Logger
	runID    idgen.Generator
	sleep    func(context.Context, time.Duration) error
}

// Option configures a Checker.
type Option func(*Checker)

// WithDelay sets the pause between remote requests. Zero disables it.
func WithDelay(d time.Duration) Option {
	return func(c *Checker) { c.delay = d }
}

// WithStrict makes local mode also parse each page and require both
// redirect mechanisms to point exactly at the registered URL.
func WithStrict(strict bool) Option {
	return func(c *Checker) { c.strict = strict }
}

// WithRemote sets remote probing parameters.
func WithRemote(rc RemoteConfig) Option {
	return func(c *Checker) { c.remote = rc }
}

// WithNotifier sets where failure summaries go. Default: notify.Nop.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Checker) { c.notifier = n }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// New creates a Checker for pages stored in dir.
func New(dir string, opts ...Option) *Checker {
	c := &Checker{
		dir:      dir,
		delay:    DefaultDelay,
		notifier: notify.Nop{},
		logger:   slog.Default(),
		runID:    idgen.RunID,
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run executes the given modes in order against store, then sends one
// notification listing every failing URL if there is any. It returns the
// reports produced so far and ctx.Err() if the run was interrupted.
func (c *Checker) Run(ctx context.Context, store *registry.Store, modes ...Mode) ([]Report, error) {
	runID := c.runID()
	log := c.logger.With("run_id", runID)
	log.Info("check: run started", "modes", modes, "entries", store.Len())

	var reports []Report
	var runErr error
	for _, m := range modes {
		var rep Report
		switch m {
		case Local:
			rep, runErr = c.local(ctx, store, log.With("mode", m))
		case Remote:
			rep, runErr = c.remoteCheck(ctx, store, log.With("mode", m))
		default:
			return reports, fmt.Errorf("check: unknown mode %q", m)
		}
		rep.RunID = runID
		reports = append(reports, rep)
		if runErr != nil {
			break
		}
	}

	failed := failingURLs(reports)
	if len(failed) > 0 {
		log.Error("check: URLs failed, sending notification", "failed", len(failed))
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		c.notifier.Notify(nctx, notify.FailureSummary(failed))
		cancel()
	} else if runErr == nil {
		log.Info("check: all checks passed")
	}
	return reports, runErr
}

// Local runs local mode only, without notification.
func (c *Checker) Local(ctx context.Context, store *registry.Store) (Report, error) {
	return c.local(ctx, store, c.logger.With("mode", Local))
}

// Remote runs remote mode only, without notification.
func (c *Checker) Remote(ctx context.Context, store *registry.Store) (Report, error) {
	return c.remoteCheck(ctx, store, c.logger.With("mode", Remote))
}

func (c *Checker) local(ctx context.Context, store *registry.Store, log *slog.Logger) (Report, error) {
	start := time.Now()
	rep := Report{Mode: Local}
	for _, e := range store.Entries() {
		if err := ctx.Err(); err != nil {
			rep.Duration = time.Since(start)
			log.Warn("check: local interrupted", "checked", rep.Checked, "error", err)
			return rep, err
		}
		if e.URL == "" {
			log.Warn("check: entry without URL skipped", "file", e.File)
			continue
		}
		rep.Checked++
		if reason := c.checkPage(e); reason != "" {
			log.Error("check: page check failed", "file", e.File, "url", e.URL, "reason", reason)
			rep.Failures = append(rep.Failures, Failure{File: e.File, URL: e.URL, Reason: reason})
		}
	}
	rep.Duration = time.Since(start)
	log.Info("check: local done", "checked", rep.Checked, "failed", len(rep.Failures))
	return rep, nil
}

// checkPage returns "" when the page for e is consistent, else a reason.
func (c *Checker) checkPage(e registry.Entry) string {
	path, err := guard.SafePath(c.dir, e.File)
	if err != nil {
		return err.Error()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("read page: %v", err)
	}
	if !strings.Contains(string(data), e.URL) {
		return "URL not found in page"
	}
	if c.strict {
		return page.Verify(data, e.URL)
	}
	return ""
}

func (c *Checker) remoteCheck(ctx context.Context, store *registry.Store, log *slog.Logger) (Report, error) {
	start := time.Now()
	rep := Report{Mode: Remote}

	cfg := probe.Config{
		Timeout:      c.remote.Timeout,
		MaxRedirects: c.remote.MaxRedirects,
		UserAgent:    c.remote.UserAgent,
	}
	if c.remote.BlockPrivate {
		cfg.URLValidator = guard.ValidatePublicURL
	}
	p := probe.New(cfg)

	urls := store.URLs()
	log.Info("check: probing URLs", "count", len(urls), "delay", c.delay)
	for i, u := range urls {
		if i > 0 && c.delay > 0 {
			if err := c.sleep(ctx, c.delay); err != nil {
				rep.Duration = time.Since(start)
				return rep, err
			}
		}
		if err := ctx.Err(); err != nil {
			rep.Duration = time.Since(start)
			return rep, err
		}

		rep.Checked++
		res, err := p.Get(ctx, u)
		if err != nil {
			status := 0
			if res != nil {
				status = res.StatusCode
			}
			log.Error("check: URL check failed", "url", u, "status", status, "error", err)
			rep.Failures = append(rep.Failures, Failure{URL: u, Reason: err.Error()})
			continue
		}
		log.Debug("check: URL ok", "url", u, "status", res.StatusCode, "elapsed", res.Elapsed)
	}
	rep.Duration = time.Since(start)
	log.Info("check: remote done", "checked", rep.Checked, "failed", len(rep.Failures))
	return rep, nil
}

func failingURLs(reports []Report) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range reports {
		for _, u := range r.URLs() {
			if seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
