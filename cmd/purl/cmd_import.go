package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/purl/importer"
)

// exactArgs rejects any other argument count with a usage error.
func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError(usage)
		}
		return nil
	}
}

func (a *app) importCmd() *cobra.Command {
	const usage = "purl import <csv-file> <column-index>"
	return &cobra.Command{
		Use:   "import <csv-file> <column-index>",
		Short: "Add URLs from one column of a semicolon-separated file",
		Long: `Reads a semicolon-separated file without header and registers every
value of the given zero-based column that starts with "http" and is not
registered yet. Each new URL gets a fresh page name.`,
		Args: exactArgs(2, usage),
		RunE: func(cmd *cobra.Command, args []string) error {
			column, err := strconv.Atoi(args[1])
			if err != nil || column < 0 {
				return usageError(usage)
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			urls, skipped, err := importer.ReadColumn(f, column)
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			sum, err := importer.New(store,
				importer.WithNames(a.names()),
				importer.WithLogger(a.logger)).Import(urls)
			if err != nil {
				return err
			}
			for _, e := range sum.Added {
				fmt.Fprintf(a.out, "%s -> %s\n", e.File, e.URL)
			}
			fmt.Fprintf(a.out, "added %d, already registered %d, skipped rows %d\n",
				len(sum.Added), sum.SkippedDuplicate, skipped)
			return nil
		},
	}
}

func (a *app) addRowsCmd() *cobra.Command {
	const usage = "purl add-rows <url> <count>"
	return &cobra.Command{
		Use:   "add-rows <url> <count>",
		Short: "Register count new pages that all point at url",
		Args:  exactArgs(2, usage),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[1])
			if err != nil || count < 1 {
				return usageError(usage)
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			sum, err := importer.New(store,
				importer.WithNames(a.names()),
				importer.WithLogger(a.logger)).AddRows(args[0], count)
			if err != nil {
				return err
			}
			for _, e := range sum.Added {
				fmt.Fprintf(a.out, "%s -> %s\n", e.File, e.URL)
			}
			return nil
		},
	}
}
