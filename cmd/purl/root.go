package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/purl/config"
	"github.com/hazyhaar/purl/idgen"
	"github.com/hazyhaar/purl/page"
	"github.com/hazyhaar/purl/registry"
)

// app is the state shared by all subcommands of one invocation.
type app struct {
	out io.Writer

	configPath string
	registry   string
	siteDir    string
	logLevel   string

	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "purl",
		Short:         "Maintain static redirect pages and their registry",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to purl.yaml")
	pf.StringVar(&a.registry, "registry", "", "registry CSV (default bin/redirects.csv)")
	pf.StringVar(&a.siteDir, "site-dir", "", "directory holding the pages (default .)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		a.importCmd(),
		a.addRowsCmd(),
		a.generateCmd(),
		a.materializeCmd(),
		a.checkCmd(),
		a.indexCmd(),
		a.utmCmd(),
		a.serveCmd(),
	)
	return root
}

// setup loads configuration, applies flag overrides and opens the log.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("registry") {
		cfg.Registry = a.registry
	}
	if flags.Changed("site-dir") {
		cfg.SiteDir = a.siteDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, closeLog, err := openLogger(cfg.LogPath(), cfg.Log.Level)
	if err != nil {
		return err
	}
	a.logger = logger.With("command", cmd.Name())
	a.closeLog = closeLog
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) close() {
	if a.closeLog != nil {
		a.closeLog()
	}
}

func (a *app) openStore() (*registry.Store, error) {
	return registry.Open(a.cfg.Registry)
}

func (a *app) builder() page.Builder {
	return page.Builder{Lang: a.cfg.Lang, Escape: a.cfg.EscapeURLs}
}

func (a *app) names() idgen.Generator {
	return idgen.Suffixed(idgen.Base36(a.cfg.Names.MinLength, a.cfg.Names.MaxLength), ".html")
}
