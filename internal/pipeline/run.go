package pipeline

import (
	"context"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/listenupapp/takeout-fixer/internal/config"
	"github.com/listenupapp/takeout-fixer/internal/domain"
	"github.com/listenupapp/takeout-fixer/internal/errors"
	"github.com/listenupapp/takeout-fixer/internal/exif"
	"github.com/listenupapp/takeout-fixer/internal/logger"
	"github.com/listenupapp/takeout-fixer/internal/pairing"
	"github.com/listenupapp/takeout-fixer/internal/sidecar"
)

// Run is one reconciliation in flight. Its goroutine is the only writer of
// image files; the foreground reads Events and answers with Ack.
type Run struct {
	job     *Job
	opts    Options
	logger  *logger.Logger
	tracker *ProgressTracker

	ctx    context.Context
	cancel context.CancelFunc

	events chan Event
	acks   chan Resolution
	done   chan struct{}

	mu          sync.Mutex
	state       domain.RunState
	summary     domain.RunSummary
	errs        []domain.FileError
	pending     *domain.FileError
	ackSent     bool
	failure     error
	startedAt   time.Time
	completedAt time.Time
}

func newRun(parent context.Context, opts Options, job *Job) *Run {
	ctx, cancel := context.WithCancel(parent)
	r := &Run{
		job:       job,
		opts:      opts,
		logger:    (&logger.Logger{Logger: opts.Logger}).WithRun(job.ID, job.Input),
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan Event, 1),
		acks:      make(chan Resolution, 1),
		done:      make(chan struct{}),
		state:     domain.RunStateIdle,
		startedAt: time.Now(),
	}
	r.tracker = NewProgressTracker(func(p *Progress) {
		if opts.OnProgress != nil {
			opts.OnProgress(job.ID, p)
		}
	})
	return r
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.job.ID }

// Events delivers EventError and EventDone. It is closed when the run ends,
// whether or not EventDone was sent. The foreground must drain it.
func (r *Run) Events() <-chan Event { return r.events }

// Done is closed once the run has ended.
func (r *Run) Done() <-chan struct{} { return r.done }

// Ack answers the pending EventError. It returns ErrNotPaused when nothing is
// waiting and ErrFinished when the run has ended.
func (r *Run) Ack(res Resolution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Terminal() {
		return ErrFinished
	}
	if r.state != domain.RunStatePaused || r.ackSent {
		return ErrNotPaused
	}
	r.ackSent = true
	r.acks <- res
	return nil
}

// Cancel stops the run before its next pair, or immediately when paused.
func (r *Run) Cancel() { r.cancel() }

// Wait blocks until the run ends and returns its summary. The error is nil
// for a completed run, context.Canceled for a canceled one, and the fatal
// error otherwise.
func (r *Run) Wait() (domain.RunSummary, error) {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary, r.failure
}

// State returns the current lifecycle state.
func (r *Run) State() domain.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Progress returns the current progress.
func (r *Run) Progress() Progress { return r.tracker.Get() }

// Snapshot returns the run as a persistable record.
func (r *Run) Snapshot() *domain.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Run) snapshotLocked() *domain.Run {
	run := &domain.Run{
		ID:        r.job.ID,
		Input:     r.job.Input,
		WorkDir:   r.job.WorkDir,
		State:     r.state,
		Summary:   r.summary,
		Errors:    slices.Clone(r.errs),
		StartedAt: r.startedAt,
		UpdatedAt: time.Now(),
	}
	if r.pending != nil {
		p := *r.pending
		run.Pending = &p
	}
	if r.failure != nil {
		run.Failure = r.failure.Error()
	}
	if !r.completedAt.IsZero() {
		t := r.completedAt
		run.CompletedAt = &t
	}
	return run
}

func (r *Run) setState(state domain.RunState) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
	r.tracker.SetPhase(state)
	r.record()
}

func (r *Run) update(fn func(s *domain.RunSummary)) {
	r.mu.Lock()
	fn(&r.summary)
	r.mu.Unlock()
}

func (r *Run) record() {
	if r.opts.Recorder == nil {
		return
	}
	// Recording continues after cancellation so the final state is kept.
	ctx := context.WithoutCancel(r.ctx)
	if err := r.opts.Recorder.SaveRun(ctx, r.Snapshot()); err != nil {
		r.logger.WithError(err).Warn("failed to record run")
	}
}

// execute is the run goroutine.
func (r *Run) execute() {
	defer close(r.done)
	defer close(r.events)
	defer r.cancel()

	r.logger.Info("run started")
	err := r.stages()

	r.mu.Lock()
	r.completedAt = time.Now()
	r.pending = nil
	switch {
	case err == nil:
		r.state = domain.RunStateCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.state = domain.RunStateCanceled
		r.failure = err
	default:
		r.state = domain.RunStateFailed
		r.failure = err
	}
	state, summary := r.state, r.summary
	r.mu.Unlock()
	r.record()

	switch state {
	case domain.RunStateCompleted:
		r.logger.Info("run completed",
			"pairs", summary.Pairs,
			"written", summary.ImagesWritten,
			"failed", summary.ImagesFailed,
			"duration", r.completedAt.Sub(r.startedAt))
		select {
		case r.events <- Event{Kind: EventDone, Summary: summary}:
		case <-r.ctx.Done():
		}
	case domain.RunStateCanceled:
		r.logger.Info("run canceled")
	default:
		r.logger.WithError(err).Error("run failed")
	}
}

func (r *Run) stages() error {
	if err := r.extract(); err != nil {
		return err
	}

	r.setState(domain.RunStateWalking)
	files, err := r.opts.Walker.Collect(r.ctx, r.job.WorkDir)
	if err != nil {
		return err
	}
	r.update(func(s *domain.RunSummary) { s.Files = len(files) })
	r.logger.Info("files discovered", "count", len(files))

	r.setState(domain.RunStateResolving)
	set := pairing.Resolve(files, pairing.Options{Logger: r.logger.Logger})
	pairs := set.Sorted()
	r.update(func(s *domain.RunSummary) {
		s.Pairs = len(pairs)
		s.Unclassified = len(set.Unclassified)
	})
	r.logger.Info("pairs resolved", "pairs", len(pairs), "unclassified", len(set.Unclassified))

	r.setState(domain.RunStateApplying)
	r.tracker.SetTotal(len(pairs))
	for _, pair := range pairs {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		r.tracker.Increment(pair.Key)
		if err := r.applyPair(pair); err != nil {
			return err
		}
	}
	return nil
}

func (r *Run) extract() error {
	info, err := os.Stat(r.job.Input)
	if err != nil {
		return errors.Wrapf(err, errors.CodeIO, "open input %s", r.job.Input)
	}
	if info.IsDir() {
		r.mu.Lock()
		r.job.WorkDir = r.job.Input
		r.mu.Unlock()
		r.logger.Info("input is a directory, skipping extraction")
		return nil
	}

	r.setState(domain.RunStateExtracting)
	result, err := r.opts.Extractor.Extract(r.ctx, r.job.Input)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.job.WorkDir = result.WorkDir
	r.summary.SkippedEntries = len(result.Skipped)
	r.mu.Unlock()
	return nil
}

// applyPair embeds the pair's sidecar into each of its images in order. A
// failure pauses the run until the operator answers; the failed image is
// retried or skipped, never silently dropped.
func (r *Run) applyPair(pair *pairing.Pair) error {
	log := r.logger.With("key", pair.Key)

	if pair.Sidecar == "" {
		r.update(func(s *domain.RunSummary) { s.PairsWithoutSidecar++ })
		log.Debug("no sidecar, leaving images untouched")
		return nil
	}

	images := pair.Images()
	if len(images) == 0 {
		r.update(func(s *domain.RunSummary) { s.SidecarsWithoutImage++ })
		log.Debug("sidecar without image, skipping", "sidecar", pair.Sidecar)
		return nil
	}

	meta, err := r.loadSidecar(pair.Sidecar)
	if err != nil || meta == nil {
		return err
	}
	embeds := len(exif.TagsFor(meta)) > 0

	for i := 0; i < len(images); {
		path := images[i]
		err := r.opts.Applier.Apply(r.ctx, meta, path)
		if err == nil {
			r.update(func(s *domain.RunSummary) {
				if embeds {
					s.ImagesWritten++
				} else {
					s.ImagesUnchanged++
				}
			})
			i++
			continue
		}
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		res, err := r.report(path, err)
		if err != nil {
			return err
		}
		if res == Retry {
			r.update(func(s *domain.RunSummary) { s.Retries++ })
			continue
		}
		r.update(func(s *domain.RunSummary) { s.ImagesFailed++ })
		i++
	}
	return nil
}

// loadSidecar reads a sidecar, applying the configured policy on failure. A
// nil record with a nil error means the pair is skipped.
func (r *Run) loadSidecar(path string) (*sidecar.Metadata, error) {
	for {
		meta, err := sidecar.Read(path)
		if err == nil {
			return meta, nil
		}
		if r.opts.SidecarPolicy == config.SidecarPolicyFatal {
			return nil, err
		}

		r.update(func(s *domain.RunSummary) { s.SidecarErrors++ })
		res, ackErr := r.report(path, err)
		if ackErr != nil {
			return nil, ackErr
		}
		if res != Retry {
			return nil, nil
		}
		r.update(func(s *domain.RunSummary) { s.Retries++ })
	}
}

// report sends an EventError and blocks until Ack or cancellation. It is the
// run's only suspension point.
func (r *Run) report(path string, cause error) (Resolution, error) {
	fe := domain.FileError{
		Path:    path,
		Message: cause.Error(),
		Code:    string(errors.CodeOf(cause)),
		At:      time.Now(),
	}

	r.mu.Lock()
	r.state = domain.RunStatePaused
	r.pending = &fe
	r.ackSent = false
	r.mu.Unlock()
	r.record()
	r.logger.WithPath(path).WithError(cause).Warn("file failed, waiting for acknowledgment")

	select {
	case r.events <- Event{Kind: EventError, Path: path, Err: cause}:
	case <-r.ctx.Done():
		return Skip, r.ctx.Err()
	}

	var res Resolution
	select {
	case res = <-r.acks:
	case <-r.ctx.Done():
		return Skip, r.ctx.Err()
	}

	fe.Resolution = res.String()
	r.mu.Lock()
	r.errs = append(r.errs, fe)
	r.pending = nil
	r.state = domain.RunStateApplying
	r.mu.Unlock()
	r.record()
	r.logger.WithPath(path).Info("acknowledged", "resolution", res.String())
	return res, nil
}
