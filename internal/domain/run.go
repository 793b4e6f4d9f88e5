// Package domain holds the entities shared by the pipeline, the run history
// store and the control API.
package domain

import "time"

// RunState is the lifecycle state of a reconciliation run.
type RunState string

const (
	RunStateIdle       RunState = "idle"
	RunStateExtracting RunState = "extracting"
	RunStateWalking    RunState = "walking"
	RunStateResolving  RunState = "resolving"
	RunStateApplying   RunState = "applying"
	RunStatePaused     RunState = "paused" // waiting for the operator to acknowledge an error
	RunStateCompleted  RunState = "completed"
	RunStateFailed     RunState = "failed"
	RunStateCanceled   RunState = "canceled"
)

// Terminal reports whether no further transitions can happen.
func (s RunState) Terminal() bool {
	return s == RunStateCompleted || s == RunStateFailed || s == RunStateCanceled
}

// FileError is a per-file failure reported to the operator.
type FileError struct {
	Path       string    `json:"path"`
	Message    string    `json:"message"`
	Code       string    `json:"code"`
	Resolution string    `json:"resolution,omitempty"` // "skip" or "retry" once acknowledged
	At         time.Time `json:"at"`
}

// RunSummary counts what a run did.
type RunSummary struct {
	Files                int `json:"files"`
	Pairs                int `json:"pairs"`
	ImagesWritten        int `json:"images_written"`
	ImagesUnchanged      int `json:"images_unchanged"` // sidecar had nothing to embed
	ImagesFailed         int `json:"images_failed"`
	Retries              int `json:"retries"`
	PairsWithoutSidecar  int `json:"pairs_without_sidecar"`
	SidecarsWithoutImage int `json:"sidecars_without_image"`
	SidecarErrors        int `json:"sidecar_errors"`
	Unclassified         int `json:"unclassified"`
	SkippedEntries       int `json:"skipped_entries"`
}

// Run is the persisted record of one reconciliation run.
type Run struct {
	ID          string      `json:"id"`
	Input       string      `json:"input"`
	WorkDir     string      `json:"work_dir,omitempty"`
	State       RunState    `json:"state"`
	Summary     RunSummary  `json:"summary"`
	Errors      []FileError `json:"errors,omitempty"`
	Pending     *FileError  `json:"pending,omitempty"`
	Failure     string      `json:"failure,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}
