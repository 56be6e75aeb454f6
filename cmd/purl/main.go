// Command purl maintains a site of static redirect pages and the CSV
// registry they are generated from.
//
// Usage:
//
//	purl import export.csv 2            # add URLs from column 2 of a ;-separated file
//	purl add-rows https://example.com 3 # add 3 pages for one URL
//	purl materialize                    # (re)write pages from the registry
//	purl check --mode both              # verify pages and targets, notify on failure
//	purl index --format all             # regenerate list/ and the README section
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// ExitError carries a process exit code and the message shown to the user.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

func usageError(usage string) error {
	return &ExitError{Code: 1, Message: "Usage: " + usage}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stdout, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stdout, "Error:", err)
		os.Exit(1)
	}
}

// run executes one command line and returns its error.
func run(ctx context.Context, out io.Writer, args []string) error {
	a := &app{out: out}
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}
