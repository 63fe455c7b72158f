package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/wesm/cursor-history/internal/query"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		printError(stderr, err)
		return 1
	}
	return 0
}

func printError(w io.Writer, err error) {
	var amb *query.AmbiguousError
	if errors.As(err, &amb) {
		fmt.Fprintf(w,
			"Error: %q matches %d sessions:\n",
			amb.Prefix, len(amb.Matches),
		)
		fmt.Fprintln(w, renderSessions(amb.Matches))
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
