// Package sse streams run lifecycle events to connected front-ends.
package sse

import (
	"time"

	"github.com/listenupapp/takeout-fixer/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventRunStarted is sent when a run is accepted.
	EventRunStarted EventType = "run.started"
	// EventRunProgress reports phase and pair counters.
	EventRunProgress EventType = "run.progress"
	// EventRunError reports a file failure; the run waits for an ack.
	EventRunError EventType = "run.error"
	// EventRunCompleted is sent once every pair was attempted.
	EventRunCompleted EventType = "run.completed"
	// EventRunFailed is sent when a run stops on a fatal error.
	EventRunFailed EventType = "run.failed"
	// EventRunCanceled is sent when a run is canceled.
	EventRunCanceled EventType = "run.canceled"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// RunID restricts delivery to clients following that run, or to all
	// clients when the client follows every run.
	RunID string `json:"run_id,omitempty"`
}

// RunStartedEventData is the data payload for run.started.
type RunStartedEventData struct {
	Input     string    `json:"input"`
	StartedAt time.Time `json:"started_at"`
}

// RunProgressEventData is the data payload for run.progress.
type RunProgressEventData struct {
	Phase       domain.RunState `json:"phase"`
	Current     int             `json:"current"`
	Total       int             `json:"total"`
	CurrentItem string          `json:"current_item,omitempty"`
}

// RunErrorEventData is the data payload for run.error.
type RunErrorEventData struct {
	Path  string `json:"path"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RunFinishedEventData is the data payload for run.completed, run.failed
// and run.canceled.
type RunFinishedEventData struct {
	State   domain.RunState   `json:"state"`
	Summary domain.RunSummary `json:"summary"`
	Failure string            `json:"failure,omitempty"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewRunStartedEvent creates a run.started event.
func NewRunStartedEvent(runID, input string, startedAt time.Time) Event {
	return Event{
		Type:      EventRunStarted,
		RunID:     runID,
		Data:      RunStartedEventData{Input: input, StartedAt: startedAt},
		Timestamp: time.Now(),
	}
}

// NewRunProgressEvent creates a run.progress event.
func NewRunProgressEvent(runID string, data RunProgressEventData) Event {
	return Event{
		Type:      EventRunProgress,
		RunID:     runID,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewRunErrorEvent creates a run.error event.
func NewRunErrorEvent(runID, path, message, code string) Event {
	return Event{
		Type:      EventRunError,
		RunID:     runID,
		Data:      RunErrorEventData{Path: path, Error: message, Code: code},
		Timestamp: time.Now(),
	}
}

// NewRunFinishedEvent creates the terminal event matching run.State.
func NewRunFinishedEvent(run *domain.Run) Event {
	t := EventRunFailed
	switch run.State {
	case domain.RunStateCompleted:
		t = EventRunCompleted
	case domain.RunStateCanceled:
		t = EventRunCanceled
	}
	return Event{
		Type:  t,
		RunID: run.ID,
		Data: RunFinishedEventData{
			State:   run.State,
			Summary: run.Summary,
			Failure: run.Failure,
		},
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: time.Now()},
		Timestamp: time.Now(),
	}
}
