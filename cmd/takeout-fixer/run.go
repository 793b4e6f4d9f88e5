package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/listenupapp/takeout-fixer/internal/archive"
	"github.com/listenupapp/takeout-fixer/internal/config"
	"github.com/listenupapp/takeout-fixer/internal/domain"
	"github.com/listenupapp/takeout-fixer/internal/errors"
	"github.com/listenupapp/takeout-fixer/internal/exif"
	"github.com/listenupapp/takeout-fixer/internal/logger"
	"github.com/listenupapp/takeout-fixer/internal/pipeline"
	"github.com/listenupapp/takeout-fixer/internal/scanner"
	"github.com/listenupapp/takeout-fixer/internal/store"
)

func runCommand(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, rest, err := config.Load("takeout-fixer run", args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if len(rest) != 1 {
		fmt.Fprintln(stderr, "usage: takeout-fixer run [flags] <archive|dir>")
		return exitUsage
	}
	input, err := filepath.Abs(rest[0])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	log := logger.New(logger.Config{
		Writer:      stderr,
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	})

	et, err := exif.StartExifTool(cfg.ExifTool.Path, log.Logger)
	if err != nil {
		log.WithError(err).Error("exiftool unavailable")
		return exitFailed
	}
	defer func() {
		if err := et.Close(); err != nil {
			log.WithError(err).Warn("failed to stop exiftool")
		}
	}()

	opts := pipeline.Options{
		Extractor:     archive.NewExtractor(log.Logger),
		Walker:        scanner.NewWalker(log.Logger, scanner.WalkOptions{SkipHidden: cfg.Pipeline.SkipHidden}),
		Applier:       exif.NewApplier(et, log.Logger),
		Logger:        log.Logger,
		SidecarPolicy: cfg.Pipeline.SidecarPolicy,
	}

	// History is best effort: a running server holds the database lock.
	if st, err := store.New(filepath.Join(cfg.Data.BasePath, "db"), log.Logger); err != nil {
		log.WithError(err).Warn("run history disabled")
	} else {
		defer st.Close()
		opts.Recorder = st
	}

	r, err := pipeline.New(opts).Start(ctx, input)
	if err != nil {
		log.WithError(err).Error("failed to start run")
		return exitFailed
	}
	fmt.Fprintf(stdout, "run %s: %s\n", r.ID(), input)

	return foreground(ctx, r, newPrompter(stdin, stdout), cfg.Pipeline.AutoSkip, stdout, stderr)
}

// foreground drains the run's events, answering each error from the
// prompter, and reports the outcome.
func foreground(ctx context.Context, r *pipeline.Run, p *prompter, autoSkip bool, stdout, stderr io.Writer) int {
	for ev := range r.Events() {
		switch ev.Kind {
		case pipeline.EventError:
			if autoSkip {
				fmt.Fprintf(stderr, "skipped %s: %v\n", ev.Path, ev.Err)
				ackOrWarn(r, pipeline.Skip, stderr)
				continue
			}
			a := p.ask(ctx, ev.Path, ev.Err)
			if a == answerAbort {
				r.Cancel()
				continue
			}
			ackOrWarn(r, a.resolution(), stderr)
		case pipeline.EventDone:
			printSummary(stdout, ev.Summary)
		}
	}

	summary, err := r.Wait()
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(stderr, "aborted")
		printSummary(stdout, summary)
		return exitCanceled
	default:
		fmt.Fprintf(stderr, "run failed: %v\n", err)
		return exitFailed
	}
}

func ackOrWarn(r *pipeline.Run, res pipeline.Resolution, stderr io.Writer) {
	if err := r.Ack(res); err != nil && !errors.Is(err, pipeline.ErrFinished) {
		fmt.Fprintf(stderr, "acknowledge: %v\n", err)
	}
}

func printSummary(w io.Writer, s domain.RunSummary) {
	fmt.Fprintf(w, "\n=== Run Complete ===\n")
	fmt.Fprintf(w, "Files:            %d\n", s.Files)
	fmt.Fprintf(w, "Pairs:            %d\n", s.Pairs)
	fmt.Fprintf(w, "Images written:   %d\n", s.ImagesWritten)
	if s.ImagesUnchanged > 0 {
		fmt.Fprintf(w, "Nothing to embed: %d\n", s.ImagesUnchanged)
	}
	fmt.Fprintf(w, "Images skipped:   %d\n", s.ImagesFailed)
	fmt.Fprintf(w, "Retries:          %d\n", s.Retries)
	fmt.Fprintf(w, "Without sidecar:  %d\n", s.PairsWithoutSidecar)
	fmt.Fprintf(w, "Orphan sidecars:  %d\n", s.SidecarsWithoutImage)
	if s.SidecarErrors > 0 {
		fmt.Fprintf(w, "Bad sidecars:     %d\n", s.SidecarErrors)
	}
	if s.Unclassified > 0 {
		fmt.Fprintf(w, "Unclassified:     %d\n", s.Unclassified)
	}
	if s.SkippedEntries > 0 {
		fmt.Fprintf(w, "Unsafe entries:   %d\n", s.SkippedEntries)
	}
}
