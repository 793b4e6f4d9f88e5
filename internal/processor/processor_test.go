package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/takeout-fixer/internal/domain"
	"github.com/listenupapp/takeout-fixer/internal/errors"
	"github.com/listenupapp/takeout-fixer/internal/service"
	"github.com/listenupapp/takeout-fixer/internal/watcher"
)

// fakeRunner records started archives. Await blocks until release is closed
// when it is set.
type fakeRunner struct {
	mu       sync.Mutex
	started  []string
	active   int
	peak     int
	release  chan struct{}
	startErr error
	state    domain.RunState
}

func (f *fakeRunner) Start(_ context.Context, req service.StartRunRequest) (*domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, req.ArchivePath)
	f.active++
	f.peak = max(f.peak, f.active)
	return &domain.Run{ID: "run-" + req.ArchivePath, Input: req.ArchivePath, State: domain.RunStateIdle}, nil
}

func (f *fakeRunner) Await(ctx context.Context, runID string) (*domain.Run, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
	state := f.state
	if state == "" {
		state = domain.RunStateCompleted
	}
	return &domain.Run{ID: runID, State: state}, nil
}

func (f *fakeRunner) startedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

func added(path string, mtime time.Time) watcher.Event {
	return watcher.Event{Type: watcher.EventAdded, Path: path, ModTime: mtime}
}

func TestEventProcessor_StartsRunForArchive(t *testing.T) {
	runner := &fakeRunner{}
	ep := NewEventProcessor(runner, nil)

	require.NoError(t, ep.ProcessEvent(t.Context(), added("/inbox/takeout-001.zip", time.Unix(1, 0))))
	assert.Equal(t, []string{"/inbox/takeout-001.zip"}, runner.startedPaths())
}

func TestEventProcessor_IgnoresNonArchives(t *testing.T) {
	runner := &fakeRunner{}
	ep := NewEventProcessor(runner, nil)

	for _, path := range []string{"/inbox/IMG_0001.jpg", "/inbox/IMG_0001.jpg.json", "/inbox/.takeout.zip", "/inbox/notes.txt"} {
		require.NoError(t, ep.ProcessEvent(t.Context(), added(path, time.Now())))
	}
	assert.Empty(t, runner.startedPaths())
}

func TestEventProcessor_SkipsUnchangedArchive(t *testing.T) {
	runner := &fakeRunner{}
	ep := NewEventProcessor(runner, nil)
	mtime := time.Unix(1700000000, 0)

	require.NoError(t, ep.ProcessEvent(t.Context(), added("/inbox/a.zip", mtime)))
	require.NoError(t, ep.ProcessEvent(t.Context(), watcher.Event{Type: watcher.EventModified, Path: "/inbox/a.zip", ModTime: mtime}))
	assert.Len(t, runner.startedPaths(), 1, "same mtime is not rerun")

	require.NoError(t, ep.ProcessEvent(t.Context(), watcher.Event{Type: watcher.EventModified, Path: "/inbox/a.zip", ModTime: mtime.Add(time.Second)}))
	assert.Len(t, runner.startedPaths(), 2, "a rewritten archive is rerun")

	require.NoError(t, ep.ProcessEvent(t.Context(), watcher.Event{Type: watcher.EventRemoved, Path: "/inbox/a.zip"}))
	require.NoError(t, ep.ProcessEvent(t.Context(), added("/inbox/a.zip", mtime.Add(time.Second))))
	assert.Len(t, runner.startedPaths(), 3, "removal forgets the archive")
}

func TestEventProcessor_FailedRunIsRetriedOnNextEvent(t *testing.T) {
	runner := &fakeRunner{state: domain.RunStateFailed}
	ep := NewEventProcessor(runner, nil)
	mtime := time.Unix(1, 0)

	require.NoError(t, ep.ProcessEvent(t.Context(), added("/inbox/a.zip", mtime)))
	require.NoError(t, ep.ProcessEvent(t.Context(), added("/inbox/a.zip", mtime)))
	assert.Len(t, runner.startedPaths(), 2)
}

func TestEventProcessor_DeduplicatesConcurrentEvents(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	ep := NewEventProcessor(runner, nil)

	done := make(chan error, 1)
	go func() { done <- ep.ProcessEvent(t.Context(), added("/inbox/a.zip", time.Unix(1, 0))) }()

	require.Eventually(t, func() bool { return len(runner.startedPaths()) == 1 }, time.Second, 5*time.Millisecond)

	// The archive lock is held; a second event returns at once.
	require.NoError(t, ep.ProcessEvent(t.Context(), added("/inbox/a.zip", time.Unix(2, 0))))
	assert.Len(t, runner.startedPaths(), 1)

	close(runner.release)
	require.NoError(t, <-done)
}

func TestEventProcessor_SerializesExportParts(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	ep := NewEventProcessor(runner, nil)

	events := make(chan watcher.Event, 3)
	events <- added("/inbox/takeout-20240102T030405Z-001.zip", time.Unix(1, 0))
	events <- added("/inbox/takeout-20240102T030405Z-002.zip", time.Unix(1, 0))
	events <- added("/inbox/other.tgz", time.Unix(1, 0))
	close(events)

	finished := make(chan struct{})
	go func() {
		ep.Run(t.Context(), events)
		close(finished)
	}()

	require.Eventually(t, func() bool { return len(runner.startedPaths()) == 2 }, time.Second, 5*time.Millisecond)
	runner.mu.Lock()
	assert.Equal(t, 2, runner.peak, "one part and the unrelated export run together")
	runner.mu.Unlock()

	close(runner.release)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Len(t, runner.startedPaths(), 3)
}

func TestEventProcessor_ConflictIsNotAnError(t *testing.T) {
	runner := &fakeRunner{startErr: errors.Conflictf("input is busy")}
	ep := NewEventProcessor(runner, nil)

	assert.NoError(t, ep.ProcessEvent(t.Context(), added("/inbox/a.zip", time.Now())))
}

func TestEventProcessor_StartErrorIsReturned(t *testing.T) {
	runner := &fakeRunner{startErr: errors.Unsupportedf("unrecognised archive format: a.zip")}
	ep := NewEventProcessor(runner, nil)

	err := ep.ProcessEvent(t.Context(), added("/inbox/a.zip", time.Now()))
	assert.ErrorIs(t, err, errors.ErrUnsupported)
}
