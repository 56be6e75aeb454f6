package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/purl/guard"
	"github.com/hazyhaar/purl/materialize"
	"github.com/hazyhaar/purl/registry"
)

func (a *app) generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <url>...",
		Short: "Write one page per URL without touching the registry",
		Long: `Writes a redirect page under a fresh name for every URL argument and
prints the URL followed by its permanent link. The registry is not
modified; names already used on disk or in the registry are avoided.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageError("purl generate <url>...")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			m := materialize.New(a.cfg.SiteDir,
				materialize.WithBuilder(a.builder()),
				materialize.WithLogger(a.logger))
			base := strings.TrimRight(a.cfg.BaseURL, "/")
			onDisk := func(name string) bool {
				_, err := os.Stat(filepath.Join(a.cfg.SiteDir, name))
				return !errors.Is(err, fs.ErrNotExist)
			}

			for _, raw := range args {
				u := strings.TrimSpace(raw)
				if u == "" {
					continue
				}
				name := store.NewFileName(a.names(), onDisk, a.cfg.IsReserved)
				if err := guard.ValidateGeneratedName(name); err != nil {
					return err
				}
				if _, err := m.Write(registry.Entry{File: name, URL: u}); err != nil {
					return err
				}
				a.logger.Info("generate: page written", "file", name, "url", u)
				fmt.Fprintf(a.out, "%s\n%s/%s\n\n", u, base, name)
			}
			return nil
		},
	}
}
