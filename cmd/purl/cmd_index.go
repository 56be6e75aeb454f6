package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/purl/index"
)

func (a *app) indexCmd() *cobra.Command {
	var source, format, title string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Regenerate the page lists and the README section",
		Long: `Builds the list of published pages from the registry or from a scan of
the site directory and rewrites the CSV list, the markdown list, the HTML
list and the README section between its markers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			const usage = "purl index [--source registry|scan] [--format csv|markdown|readme|html|all]"
			formats, err := index.ParseFormats(format)
			if err != nil {
				return usageError(usage)
			}

			var pairs []index.Pair
			switch source {
			case "registry":
				store, err := a.openStore()
				if err != nil {
					return err
				}
				pairs = index.FromRegistry(store)
			case "scan":
				if pairs, err = index.Scan(a.cfg.SiteDir, a.cfg.Reserved, a.logger); err != nil {
					return err
				}
			default:
				return usageError(usage)
			}

			pub := index.NewPublisher(index.Targets{
				CSV:         a.cfg.List.CSV,
				Markdown:    a.cfg.List.Markdown,
				HTML:        a.cfg.List.HTML,
				Readme:      a.cfg.Readme.Path,
				StartMarker: a.cfg.Readme.StartMarker,
				EndMarker:   a.cfg.Readme.EndMarker,
			}, a.cfg.BaseURL, index.WithLang(a.cfg.Lang), index.WithTitle(title), index.WithLogger(a.logger))

			written, err := pub.Publish(pairs, formats...)
			for _, p := range written {
				fmt.Fprintf(a.out, "wrote %s (%d entries)\n", p, len(pairs))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&source, "source", "registry", "registry or scan")
	cmd.Flags().StringVar(&format, "format", "all", "csv, markdown, readme, html or all")
	cmd.Flags().StringVar(&title, "title", "PURL", "title of the HTML index")
	return cmd
}
