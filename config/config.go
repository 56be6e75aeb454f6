// Package config holds the purl configuration: YAML file, environment
// overrides and defaults matching the published site layout.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full purl configuration.
type Config struct {
	Registry   string        `yaml:"registry"`
	SiteDir    string        `yaml:"site_dir"`
	BaseURL    string        `yaml:"base_url"`
	Lang       string        `yaml:"lang"`
	EscapeURLs bool          `yaml:"escape_urls"`
	Names      NamesConfig   `yaml:"names"`
	Reserved   []string      `yaml:"reserved"`
	Readme     ReadmeConfig  `yaml:"readme"`
	List       ListConfig    `yaml:"list"`
	Check      CheckConfig   `yaml:"check"`
	Notify     NotifyConfig  `yaml:"notify"`
	Log        LogConfig     `yaml:"log"`
	Preview    PreviewConfig `yaml:"preview"`
}

// Page names are 5 to 7 base-36 characters; guard.ValidateGeneratedName
// rejects anything else.
const (
	MinNameLength = 5
	MaxNameLength = 7
)

// NamesConfig bounds the length of generated page names.
type NamesConfig struct {
	MinLength int `yaml:"min_length"`
	MaxLength int `yaml:"max_length"`
}

// ReadmeConfig locates the generated section of the README.
type ReadmeConfig struct {
	Path        string `yaml:"path"`
	StartMarker string `yaml:"start_marker"`
	EndMarker   string `yaml:"end_marker"`
}

// ListConfig holds the paths of the regenerated index documents.
type ListConfig struct {
	Markdown string `yaml:"markdown"`
	CSV      string `yaml:"csv"`
	HTML     string `yaml:"html"`
}

// CheckConfig tunes the consistency checker.
type CheckConfig struct {
	Delay        time.Duration `yaml:"delay"`
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	BlockPrivate bool          `yaml:"block_private"`
	MaxRedirects int           `yaml:"max_redirects"`
}

// NotifyConfig configures the failure webhook.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LogConfig configures the log file.
type LogConfig struct {
	Dir   string `yaml:"dir"`
	File  string `yaml:"file"`
	Level string `yaml:"level"` // debug | info | warn | error
}

// PreviewConfig configures the preview server.
type PreviewConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Registry: filepath.Join("bin", "redirects.csv"),
		SiteDir:  ".",
		BaseURL:  "https://purl.aarhusstadsarkiv.dk",
		Lang:     "da",
		Names:    NamesConfig{MinLength: 5, MaxLength: 7},
		Reserved: []string{"index.html", "template.html"},
		Readme: ReadmeConfig{
			Path:        "README.md",
			StartMarker: "<!-- Existing PURLs -->",
			EndMarker:   "<!-- End PURLs -->",
		},
		List: ListConfig{
			Markdown: filepath.Join("list", "README.md"),
			CSV:      filepath.Join("list", "links.csv"),
			HTML:     filepath.Join("list", "index.html"),
		},
		Check: CheckConfig{
			Delay:        time.Second,
			Timeout:      10 * time.Second,
			UserAgent:    "purl-checker/1.0",
			MaxRedirects: 10,
		},
		Notify:  NotifyConfig{Timeout: 10 * time.Second},
		Log:     LogConfig{Dir: "logs", File: "main.log", Level: "info"},
		Preview: PreviewConfig{Addr: ":8080"},
	}
}

// LoadFile reads a YAML file over Default. Keys absent from the file keep
// their default value.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Load returns Default, or the file at path when path is non-empty, with
// environment overrides applied and the result validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from environment variables. lookup is
// os.LookupEnv outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PURL_REGISTRY"); ok && v != "" {
		c.Registry = v
	}
	if v, ok := lookup("PURL_SITE_DIR"); ok && v != "" {
		c.SiteDir = v
	}
	if v, ok := lookup("PURL_WEBHOOK_URL"); ok && v != "" {
		c.Notify.WebhookURL = v
	} else if v, ok := lookup("MATTERMOST_WEBHOOK_URL"); ok && v != "" && c.Notify.WebhookURL == "" {
		c.Notify.WebhookURL = v
	}
	if v, ok := lookup("PURL_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("PURL_CHECK_DELAY"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PURL_CHECK_DELAY: %w", err)
		}
		c.Check.Delay = d
	}
	return nil
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	var errs []error
	if c.Registry == "" {
		errs = append(errs, errors.New("registry is required"))
	}
	if c.Names.MinLength < MinNameLength || c.Names.MinLength > MaxNameLength {
		errs = append(errs, fmt.Errorf("names.min_length must be between %d and %d, got %d", MinNameLength, MaxNameLength, c.Names.MinLength))
	}
	if c.Names.MaxLength < c.Names.MinLength || c.Names.MaxLength > MaxNameLength {
		errs = append(errs, fmt.Errorf("names.max_length must be between names.min_length (%d) and %d, got %d", c.Names.MinLength, MaxNameLength, c.Names.MaxLength))
	}
	if c.Check.Delay < 0 {
		errs = append(errs, errors.New("check.delay must be >= 0"))
	}
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url must be an http(s) URL, got %q", c.BaseURL))
	}
	if c.Readme.StartMarker == "" || c.Readme.EndMarker == "" || c.Readme.StartMarker == c.Readme.EndMarker {
		errs = append(errs, errors.New("readme markers must be non-empty and distinct"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		errs = append(errs, fmt.Errorf("unsupported log.level %q (use debug, info, warn or error)", c.Log.Level))
	}
	return errors.Join(errs...)
}

// LogPath returns the log file path.
func (c *Config) LogPath() string { return filepath.Join(c.Log.Dir, c.Log.File) }

// IsReserved reports whether name is a page name the tools never touch.
func (c *Config) IsReserved(name string) bool {
	for _, r := range c.Reserved {
		if r == name {
			return true
		}
	}
	return false
}
