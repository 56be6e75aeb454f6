package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/purl/registry"
)

func (a *app) utmCmd() *cobra.Command {
	var (
		out     string
		inPlace bool
	)
	cmd := &cobra.Command{
		Use:   "utm",
		Short: "Add default utm_source and utm_campaign to registry URLs",
		Long: `Writes a copy of the registry where every URL lacking utm_source or
utm_campaign gets utm_source=qr and utm_campaign=default. The registry
itself is only replaced with --in-place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			target := out
			switch {
			case inPlace:
				target = store.Path()
			case target == "":
				target = strings.TrimSuffix(store.Path(), ".csv") + ".updated.csv"
			}

			entries, changed := registry.ApplyUTMDefaults(store.Entries())
			if err := registry.WriteFile(target, entries); err != nil {
				return err
			}
			a.logger.Info("utm: registry rewritten", "path", target, "entries", len(entries), "changed", changed)
			fmt.Fprintf(a.out, "updated %d of %d URLs, wrote %s\n", changed, len(entries), target)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output path (default <registry>.updated.csv)")
	cmd.Flags().BoolVar(&inPlace, "in-place", false, "replace the registry itself")
	return cmd
}
