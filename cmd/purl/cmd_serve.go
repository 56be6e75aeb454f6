package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/purl/materialize"
	"github.com/hazyhaar/purl/preview"
	"github.com/hazyhaar/purl/watch"
)

func (a *app) serveCmd() *cobra.Command {
	var (
		addr    string
		rebuild bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the site directory for local preview",
		Long: `Serves the site directory read-only. With --watch, pages are
re-materialized whenever the registry file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = a.cfg.Preview.Addr
			}
			ctx := cmd.Context()
			var w *watch.Watcher
			if rebuild {
				m := materialize.New(a.cfg.SiteDir,
					materialize.WithBuilder(a.builder()),
					materialize.WithLogger(a.logger))
				w = watch.New(a.cfg.Registry, watch.Options{
					Interval: time.Second,
					Debounce: 300 * time.Millisecond,
					Logger:   a.logger,
				})
				go w.OnChange(ctx, func() error {
					store, err := a.openStore()
					if err != nil {
						return err
					}
					_, err = m.Run(ctx, store)
					return err
				})
			}
			srv := preview.New(a.cfg.SiteDir, a.cfg.Registry, preview.WithLogger(a.logger))
			err := srv.ListenAndServe(ctx, addr)
			if w != nil {
				st := w.Stats()
				a.logger.Info("serve: watcher stopped",
					"checks", st.Checks, "changes", st.ChangesDetected, "rebuilds", st.Reloads, "errors", st.Errors)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&rebuild, "watch", false, "re-materialize pages when the registry changes")
	return cmd
}
