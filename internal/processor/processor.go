package processor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/takeout-fixer/internal/domain"
	"github.com/listenupapp/takeout-fixer/internal/errors"
	"github.com/listenupapp/takeout-fixer/internal/service"
	"github.com/listenupapp/takeout-fixer/internal/watcher"
)

// Runner starts runs and waits for them to end. *service.RunService
// satisfies it.
type Runner interface {
	Start(ctx context.Context, req service.StartRunRequest) (*domain.Run, error)
	Await(ctx context.Context, runID string) (*domain.Run, error)
}

// EventProcessor starts one run per settled archive in the inbox.
//
//   - Each event is handled on its own goroutine, immediately.
//   - A per-archive TryLock drops duplicate events for an archive that is
//     already being reconciled.
//   - Parts of one multi-part export run one after another.
//   - An archive that settles again with the same mtime is not rerun.
type EventProcessor struct {
	runs   Runner
	logger *slog.Logger

	archiveLocks *SyncMap[string, *sync.Mutex]
	exportLocks  *SyncMap[string, *sync.Mutex]
	processed    *SyncMap[string, time.Time]

	wg sync.WaitGroup
}

// NewEventProcessor creates a new EventProcessor instance.
func NewEventProcessor(runs Runner, logger *slog.Logger) *EventProcessor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EventProcessor{
		runs:         runs,
		logger:       logger,
		archiveLocks: NewSyncMap[string, *sync.Mutex](),
		exportLocks:  NewSyncMap[string, *sync.Mutex](),
		processed:    NewSyncMap[string, time.Time](),
	}
}

// Run consumes events until the channel closes or ctx is canceled, then
// waits for the runs it started.
func (ep *EventProcessor) Run(ctx context.Context, events <-chan watcher.Event) {
	defer ep.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			ep.wg.Add(1)
			go func() {
				defer ep.wg.Done()
				if err := ep.ProcessEvent(ctx, event); err != nil {
					ep.logger.Error("inbox run failed", "path", event.Path, "error", err)
				}
			}()
		}
	}
}

// ProcessEvent starts a run for an added or modified archive and blocks
// until it ends.
func (ep *EventProcessor) ProcessEvent(ctx context.Context, event watcher.Event) error {
	ep.logger.Debug("processing event", "type", event.Type.String(), "path", event.Path)

	if event.Type == watcher.EventRemoved {
		ep.processed.Delete(event.Path)
		return nil
	}

	if fileType := classifyFile(event.Path); fileType != FileTypeArchive {
		ep.logger.Debug("ignoring file", "path", event.Path, "type", fileType.String())
		return nil
	}

	if last, ok := ep.processed.Load(event.Path); ok && last.Equal(event.ModTime) {
		ep.logger.Debug("archive unchanged since last run, skipping", "path", event.Path)
		return nil
	}

	lock := getLock(ep.archiveLocks, event.Path)
	if !lock.TryLock() {
		ep.logger.Debug("archive already being reconciled, skipping", "path", event.Path)
		return nil
	}
	defer lock.Unlock()

	export := determineExportKey(event.Path)
	exportLock := getLock(ep.exportLocks, export)
	exportLock.Lock()
	defer exportLock.Unlock()

	return ep.reconcile(ctx, event)
}

func (ep *EventProcessor) reconcile(ctx context.Context, event watcher.Event) error {
	run, err := ep.runs.Start(ctx, service.StartRunRequest{ArchivePath: event.Path})
	if err != nil {
		if errors.Is(err, errors.ErrConflict) {
			ep.logger.Info("archive already has an active run", "path", event.Path)
			return nil
		}
		return err
	}

	log := ep.logger.With("run_id", run.ID, "path", event.Path)
	log.Info("inbox run started")

	final, err := ep.runs.Await(ctx, run.ID)
	if err != nil {
		return err
	}

	switch final.State {
	case domain.RunStateCompleted:
		ep.processed.Store(event.Path, event.ModTime)
		log.Info("inbox run completed",
			"written", final.Summary.ImagesWritten,
			"failed", final.Summary.ImagesFailed)
	case domain.RunStateCanceled:
		log.Info("inbox run canceled")
	default:
		log.Warn("inbox run failed", "failure", final.Failure)
	}
	return nil
}

// getLock returns the mutex for key, creating it on first use.
func getLock(locks *SyncMap[string, *sync.Mutex], key string) *sync.Mutex {
	if lock, ok := locks.Load(key); ok {
		return lock
	}
	actual, _ := locks.LoadOrStore(key, &sync.Mutex{})
	return actual
}
