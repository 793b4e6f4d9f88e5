// Package watcher reports files dropped into an inbox directory once they
// stop changing.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/listenupapp/takeout-fixer/internal/errors"
)

// Watcher monitors one directory, non-recursively. A Create or Write starts
// a settle timer; the file is reported when its size and mtime hold still
// for a full SettleDelay.
type Watcher struct {
	logger *slog.Logger
	opts   Options
	fs     *fsnotify.Watcher
	dir    string

	mu      sync.Mutex
	pending map[string]*pendingFile
	seen    map[string]struct{}
	stopped bool

	events   chan Event
	errors   chan error
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// pendingFile tracks a file that may still be changing.
type pendingFile struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

// New creates a watcher. Call Watch before Start.
func New(logger *slog.Logger, opts Options) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts.setDefaults()

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "create fsnotify watcher")
	}

	return &Watcher{
		logger:  logger,
		opts:    opts,
		fs:      fs,
		pending: make(map[string]*pendingFile),
		seen:    make(map[string]struct{}),
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Watch sets the inbox directory.
func (w *Watcher) Watch(dir string) error {
	dir = filepath.Clean(dir)

	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, errors.CodeIO, "stat inbox %s", dir)
	}
	if !info.IsDir() {
		return errors.Validationf("inbox %s is not a directory", dir)
	}
	if err := w.fs.Add(dir); err != nil {
		return errors.Wrapf(err, errors.CodeIO, "watch inbox %s", dir)
	}

	w.dir = dir
	w.logger.Info("watching inbox", "path", dir, "settle_delay", w.opts.SettleDelay)
	return nil
}

// Start processes events until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.wg.Add(1)
	go w.processEvents(ctx)

	if w.opts.EmitExisting && w.dir != "" {
		w.settleExisting()
	}

	select {
	case <-ctx.Done():
	case <-w.done:
	}
	return nil
}

// Stop stops the watcher and closes the Events and Errors channels. It is
// safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		w.stopped = true
		for _, p := range w.pending {
			p.timer.Stop()
		}
		clear(w.pending)
		w.mu.Unlock()

		err = w.fs.Close()
		w.wg.Wait()

		close(w.events)
		close(w.errors)
	})
	return err
}

// Events returns the channel of settled events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watch errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

func (w *Watcher) settleExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("failed to list inbox", "path", w.dir, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			w.startSettling(filepath.Join(w.dir, entry.Name()))
		}
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
				w.logger.Warn("dropping watcher error", "error", err)
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := event.Name
	if w.opts.shouldIgnore(path) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.removed(path)
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.startSettling(path)
	}
}

func (w *Watcher) startSettling(path string) {
	if w.opts.shouldIgnore(path) {
		return
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
	}
	w.pending[path] = &pendingFile{
		size:    info.Size(),
		modTime: info.ModTime(),
		timer:   time.AfterFunc(w.opts.SettleDelay, func() { w.checkSettled(path) }),
	}
}

func (w *Watcher) checkSettled(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pending[path]
	if !ok || w.stopped {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(w.pending, path)
		return
	}

	if info.Size() != p.size || !info.ModTime().Equal(p.modTime) {
		p.size = info.Size()
		p.modTime = info.ModTime()
		p.timer = time.AfterFunc(w.opts.SettleDelay, func() { w.checkSettled(path) })
		return
	}

	delete(w.pending, path)
	kind := EventAdded
	if _, ok := w.seen[path]; ok {
		kind = EventModified
	}
	w.seen[path] = struct{}{}

	w.emit(Event{Type: kind, Path: path, Size: info.Size(), ModTime: info.ModTime()})
}

func (w *Watcher) removed(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		delete(w.pending, path)
	}
	if _, ok := w.seen[path]; !ok {
		return
	}
	delete(w.seen, path)
	w.emit(Event{Type: EventRemoved, Path: path})
}

// emit must be called with mu held.
func (w *Watcher) emit(event Event) {
	select {
	case w.events <- event:
	case <-w.done:
	}
}
