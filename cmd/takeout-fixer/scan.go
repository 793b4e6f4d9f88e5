package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"runtime"

	"github.com/listenupapp/takeout-fixer/internal/logger"
	"github.com/listenupapp/takeout-fixer/internal/scanner"
)

func scanCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("takeout-fixer scan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	workers := fs.Int("workers", runtime.NumCPU(), "Concurrent image decodes")
	skipHidden := fs.Bool("skip-hidden", false, "Skip dot-files")
	verbose := fs.Bool("v", false, "List every undated image")
	logLevel := fs.String("log-level", "warn", "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: takeout-fixer scan [flags] <dir>")
		return exitUsage
	}

	log := logger.New(logger.Config{Writer: stderr, Level: logger.ParseLevel(*logLevel)})
	walker := scanner.NewWalker(log.Logger, scanner.WalkOptions{SkipHidden: *skipHidden})

	report, err := scanner.NewAuditor(walker, log.Logger).Audit(ctx, fs.Arg(0), scanner.AuditOptions{Workers: *workers})
	if err != nil {
		fmt.Fprintf(stderr, "scan failed: %v\n", err)
		return exitFailed
	}

	printReport(stdout, report, *verbose)
	if len(report.Undated) > 0 {
		return exitFailed
	}
	return exitOK
}

func printReport(w io.Writer, r *scanner.AuditReport, verbose bool) {
	fmt.Fprintf(w, "=== Scan of %s ===\n", r.Root)
	fmt.Fprintf(w, "Images:       %d\n", r.Images)
	fmt.Fprintf(w, "Dated:        %d\n", r.Dated)
	fmt.Fprintf(w, "Undated:      %d\n", len(r.Undated))
	fmt.Fprintf(w, "Unreadable:   %d\n", len(r.Unreadable))
	fmt.Fprintf(w, "Not checked:  %d\n", r.Unsupported)
	fmt.Fprintf(w, "Sidecars:     %d\n", r.Sidecars)
	fmt.Fprintf(w, "No sidecar:   %d\n", r.Unpaired)

	if verbose {
		for _, path := range r.Undated {
			fmt.Fprintf(w, "  undated     %s\n", path)
		}
		for _, issue := range r.Unreadable {
			fmt.Fprintf(w, "  unreadable  %s: %s\n", issue.Path, issue.Error)
		}
	}
}
