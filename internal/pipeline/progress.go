package pipeline

import (
	"sync"

	"github.com/listenupapp/takeout-fixer/internal/domain"
)

// Progress is a point-in-time view of a run.
type Progress struct {
	Phase       domain.RunState
	Current     int
	Total       int
	CurrentItem string
}

// ProgressTracker tracks and reports run progress.
type ProgressTracker struct {
	callback func(*Progress)
	progress Progress
	mu       sync.RWMutex
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker(callback func(*Progress)) *ProgressTracker {
	return &ProgressTracker{
		callback: callback,
		progress: Progress{Phase: domain.RunStateIdle},
	}
}

// SetPhase switches phase and resets the counters.
func (p *ProgressTracker) SetPhase(phase domain.RunState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.progress = Progress{Phase: phase}
	p.notify()
}

// SetTotal sets the total items for the current phase.
func (p *ProgressTracker) SetTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.progress.Total = total
	p.notify()
}

// Increment advances the current phase by one item.
func (p *ProgressTracker) Increment(currentItem string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.progress.Current++
	p.progress.CurrentItem = currentItem
	p.notify()
}

// Get returns current progress.
func (p *ProgressTracker) Get() Progress {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.progress
}

func (p *ProgressTracker) notify() {
	if p.callback != nil {
		progress := p.progress
		go p.callback(&progress)
	}
}
