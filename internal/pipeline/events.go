package pipeline

import (
	"errors"

	"github.com/listenupapp/takeout-fixer/internal/domain"
)

// EventKind distinguishes the two signals a run sends its foreground.
type EventKind int

const (
	// EventError reports a per-file failure. The run is paused until Ack.
	EventError EventKind = iota
	// EventDone is sent once, after every pair was attempted.
	EventDone
)

func (k EventKind) String() string {
	if k == EventDone {
		return "done"
	}
	return "error"
}

// Event is one signal from a run.
type Event struct {
	Kind    EventKind
	Path    string // EventError only
	Err     error  // EventError only
	Summary domain.RunSummary
}

// Resolution is the operator's answer to an EventError.
type Resolution int

const (
	// Skip leaves the failed file as it is and moves on.
	Skip Resolution = iota
	// Retry attempts the failed file again.
	Retry
)

func (r Resolution) String() string {
	if r == Retry {
		return "retry"
	}
	return "skip"
}

// ParseResolution accepts "skip" and "retry".
func ParseResolution(s string) (Resolution, bool) {
	switch s {
	case "skip":
		return Skip, true
	case "retry":
		return Retry, true
	}
	return Skip, false
}

var (
	// ErrNotPaused is returned by Ack when no error is waiting for an answer.
	ErrNotPaused = errors.New("run is not waiting for acknowledgment")
	// ErrFinished is returned when acting on a run that already ended.
	ErrFinished = errors.New("run has finished")
)
