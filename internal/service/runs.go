// Package service holds the run control logic shared by the HTTP API and the
// inbox processor.
package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/listenupapp/takeout-fixer/internal/archive"
	"github.com/listenupapp/takeout-fixer/internal/domain"
	"github.com/listenupapp/takeout-fixer/internal/errors"
	"github.com/listenupapp/takeout-fixer/internal/logger"
	"github.com/listenupapp/takeout-fixer/internal/pipeline"
	"github.com/listenupapp/takeout-fixer/internal/sse"
	"github.com/listenupapp/takeout-fixer/internal/store"
	"github.com/listenupapp/takeout-fixer/internal/validation"
)

// StartRunRequest asks for a reconciliation of an archive or directory.
type StartRunRequest struct {
	ArchivePath string `json:"archive_path" validate:"required,max=4096"`
}

// AckRequest answers the pending error of a paused run.
type AckRequest struct {
	RunID  string `json:"run_id" validate:"required,runid"`
	Action string `json:"action" validate:"required,oneof=skip retry"`
}

// RunServiceOptions configures a RunService.
type RunServiceOptions struct {
	// AutoSkip acknowledges every error with Skip, for unattended runs.
	AutoSkip bool
}

// RunService starts runs and acts as their foreground: it drains each run's
// events into SSE, and forwards acks and cancels from clients.
type RunService struct {
	pipeline  *pipeline.Pipeline
	store     *store.Store
	sse       *sse.Manager
	validator *validation.Validator
	logger    *slog.Logger
	opts      RunServiceOptions

	// Runs outlive the request that started them; they stop with the service.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]*pipeline.Run
	inputs map[string]string // absolute input path -> run id
}

// NewRunService creates a run service.
func NewRunService(p *pipeline.Pipeline, st *store.Store, sseManager *sse.Manager, logger *slog.Logger, opts RunServiceOptions) *RunService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RunService{
		pipeline:  p,
		store:     st,
		sse:       sseManager,
		validator: validation.New(),
		logger:    logger,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		active:    make(map[string]*pipeline.Run),
		inputs:    make(map[string]string),
	}
}

// Start validates the request and launches a run. A second run on an input
// that is still being processed is a conflict.
func (s *RunService) Start(ctx context.Context, req StartRunRequest) (*domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	input, err := filepath.Abs(req.ArchivePath)
	if err != nil {
		return nil, errors.Validation("archive_path is not a valid path")
	}
	info, err := os.Stat(input)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundf("archive %s does not exist", input)
		}
		return nil, errors.Wrapf(err, errors.CodeIO, "stat %s", input)
	}
	if !info.IsDir() {
		if _, err := archive.DetectFormat(input); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return nil, errors.Conflict("service is shutting down")
	}
	if runID, busy := s.inputs[input]; busy {
		return nil, errors.Conflictf("%s is already being processed by %s", input, runID)
	}

	run, err := s.pipeline.Start(s.ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "start run")
	}
	s.active[run.ID()] = run
	s.inputs[input] = run.ID()

	snap := run.Snapshot()
	s.sse.Emit(sse.NewRunStartedEvent(snap.ID, snap.Input, snap.StartedAt))
	s.logger.Info("run accepted", "run_id", snap.ID, "input", input)

	s.wg.Add(1)
	go s.forward(run, input)

	return snap, nil
}

// forward is the foreground of one run.
func (s *RunService) forward(run *pipeline.Run, input string) {
	defer s.wg.Done()
	log := (&logger.Logger{Logger: s.logger}).WithRun(run.ID(), input)

	for ev := range run.Events() {
		if ev.Kind != pipeline.EventError {
			continue
		}
		s.sse.Emit(sse.NewRunErrorEvent(run.ID(), ev.Path, ev.Err.Error(), string(errors.CodeOf(ev.Err))))
		if s.opts.AutoSkip {
			if err := run.Ack(pipeline.Skip); err != nil {
				log.WithPath(ev.Path).WithError(err).Debug("auto-skip not delivered")
			}
		}
	}

	_, _ = run.Wait()
	final := run.Snapshot()

	s.mu.Lock()
	delete(s.active, run.ID())
	delete(s.inputs, input)
	s.mu.Unlock()

	s.sse.Emit(sse.NewRunFinishedEvent(final))
	log.Info("run finished", "state", final.State)
}

// Get returns the live view of an active run, or the stored record.
func (s *RunService) Get(ctx context.Context, runID string) (*domain.Run, error) {
	if run := s.lookup(runID); run != nil {
		return run.Snapshot(), nil
	}
	return s.store.GetRun(ctx, runID)
}

// List pages through the run history, newest first.
func (s *RunService) List(ctx context.Context, params store.PaginationParams) (*store.PaginatedResult[*domain.Run], error) {
	page, err := s.store.ListRuns(ctx, params)
	if err != nil {
		return nil, err
	}
	// Active runs are recorded asynchronously; prefer their live state.
	for i, r := range page.Items {
		if run := s.lookup(r.ID); run != nil {
			page.Items[i] = run.Snapshot()
		}
	}
	return page, nil
}

// Ack answers the pending error of a paused run.
func (s *RunService) Ack(ctx context.Context, req AckRequest) (*domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	res, _ := pipeline.ParseResolution(req.Action)

	run, err := s.activeRun(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	switch err := run.Ack(res); {
	case errors.Is(err, pipeline.ErrNotPaused):
		return nil, errors.Conflictf("run %s is not waiting for acknowledgment", req.RunID)
	case errors.Is(err, pipeline.ErrFinished):
		return nil, errors.Conflictf("run %s has finished", req.RunID)
	case err != nil:
		return nil, err
	}

	s.logger.Info("run acknowledged", "run_id", req.RunID, "action", res.String())
	return run.Snapshot(), nil
}

// Cancel stops an active run.
func (s *RunService) Cancel(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.activeRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.Cancel()
	s.logger.Info("run cancel requested", "run_id", runID)
	return run.Snapshot(), nil
}

// Await blocks until the active run ends and returns its final record.
func (s *RunService) Await(ctx context.Context, runID string) (*domain.Run, error) {
	run := s.lookup(runID)
	if run == nil {
		return s.store.GetRun(ctx, runID)
	}
	select {
	case <-run.Done():
		return run.Snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ActiveCount returns the number of runs in flight.
func (s *RunService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Shutdown cancels every active run and waits for their foregrounds.
func (s *RunService) Shutdown(ctx context.Context) error {
	s.logger.Info("run service shutting down", "active", s.ActiveCount())
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RunService) lookup(runID string) *pipeline.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[runID]
}

// activeRun distinguishes an unknown run from one that already ended.
func (s *RunService) activeRun(ctx context.Context, runID string) (*pipeline.Run, error) {
	if run := s.lookup(runID); run != nil {
		return run, nil
	}
	if _, err := s.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return nil, errors.Conflictf("run %s has finished", runID)
}
