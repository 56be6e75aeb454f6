package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/purl/materialize"
)

func (a *app) materializeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "materialize",
		Short: "Write a page for every registry entry",
		Long: `Renders every registry entry into the site directory. Pages whose
content is already current are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			res, err := materialize.New(a.cfg.SiteDir,
				materialize.WithBuilder(a.builder()),
				materialize.WithLogger(a.logger)).Run(cmd.Context(), store)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "created %d, updated %d, unchanged %d, skipped %d\n",
				res.Created, res.Updated, res.Unchanged, res.SkippedNoURL)
			if len(res.Failed) == 0 {
				return nil
			}
			files := make([]string, 0, len(res.Failed))
			for f := range res.Failed {
				files = append(files, f)
			}
			sort.Strings(files)
			for _, f := range files {
				fmt.Fprintf(a.out, "failed %s: %v\n", f, res.Failed[f])
			}
			return fmt.Errorf("%d pages could not be written", len(files))
		},
	}
}
