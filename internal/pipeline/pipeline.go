// Package pipeline runs a reconciliation: extract the export, walk it, pair
// sidecars with images and embed the sidecar metadata, all on one background
// goroutine that pauses whenever a file fails until the operator answers.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/listenupapp/takeout-fixer/internal/archive"
	"github.com/listenupapp/takeout-fixer/internal/config"
	"github.com/listenupapp/takeout-fixer/internal/domain"
	"github.com/listenupapp/takeout-fixer/internal/id"
	"github.com/listenupapp/takeout-fixer/internal/sidecar"
)

// Extractor unpacks an archive into its working directory.
type Extractor interface {
	Extract(ctx context.Context, archivePath string) (*archive.Result, error)
}

// Walker lists the files under a directory.
type Walker interface {
	Collect(ctx context.Context, root string) (map[string]struct{}, error)
}

// Applier embeds a sidecar record into one image.
type Applier interface {
	Apply(ctx context.Context, meta *sidecar.Metadata, path string) error
}

// Recorder persists run snapshots. Failures are logged, never fatal.
type Recorder interface {
	SaveRun(ctx context.Context, run *domain.Run) error
}

// Options configures a Pipeline.
type Options struct {
	Extractor Extractor
	Walker    Walker
	Applier   Applier
	Recorder  Recorder // optional
	Logger    *slog.Logger

	// SidecarPolicy is config.SidecarPolicyReport (default) or
	// config.SidecarPolicyFatal.
	SidecarPolicy string

	// OnProgress is called asynchronously on every progress change.
	OnProgress func(runID string, p *Progress)
}

// Pipeline starts runs sharing one set of collaborators.
type Pipeline struct {
	opts Options
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.SidecarPolicy == "" {
		opts.SidecarPolicy = config.SidecarPolicyReport
	}
	return &Pipeline{opts: opts}
}

// Job is the explicit context of one run, threaded through every stage.
type Job struct {
	ID      string
	Input   string // archive file or already extracted directory
	WorkDir string
}

// Start launches a run for input on its own goroutine. The run ends when
// every pair was attempted, on a fatal error, or when ctx is canceled or
// Cancel is called.
func (p *Pipeline) Start(ctx context.Context, input string) (*Run, error) {
	runID, err := id.Generate(id.PrefixRun)
	if err != nil {
		return nil, err
	}

	r := newRun(ctx, p.opts, &Job{ID: runID, Input: input})
	go r.execute()
	return r, nil
}
