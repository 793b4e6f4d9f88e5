package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/takeout-fixer/internal/domain"
	"github.com/listenupapp/takeout-fixer/internal/service"
	"github.com/listenupapp/takeout-fixer/internal/store"
)

func (s *Server) registerRunRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "startRun",
		Method:        http.MethodPost,
		Path:          "/api/v1/runs",
		Summary:       "Start run",
		Description:   "Extracts an export archive (or uses a directory) and embeds every sidecar into its images",
		Tags:          []string{"Runs"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleStartRun)

	huma.Register(s.api, huma.Operation{
		OperationID: "listRuns",
		Method:      http.MethodGet,
		Path:        "/api/v1/runs",
		Summary:     "List runs",
		Description: "Returns the run history, newest first",
		Tags:        []string{"Runs"},
	}, s.handleListRuns)

	huma.Register(s.api, huma.Operation{
		OperationID: "getRun",
		Method:      http.MethodGet,
		Path:        "/api/v1/runs/{id}",
		Summary:     "Get run",
		Description: "Returns a run, live if it is still active",
		Tags:        []string{"Runs"},
	}, s.handleGetRun)

	huma.Register(s.api, huma.Operation{
		OperationID: "ackRun",
		Method:      http.MethodPost,
		Path:        "/api/v1/runs/{id}/ack",
		Summary:     "Acknowledge error",
		Description: "Answers the pending file error of a paused run with skip or retry",
		Tags:        []string{"Runs"},
	}, s.handleAckRun)

	huma.Register(s.api, huma.Operation{
		OperationID: "cancelRun",
		Method:      http.MethodPost,
		Path:        "/api/v1/runs/{id}/cancel",
		Summary:     "Cancel run",
		Description: "Stops an active run before its next pair, or at once when paused",
		Tags:        []string{"Runs"},
	}, s.handleCancelRun)
}

// === DTOs ===

// FileErrorResponse is one failed file.
type FileErrorResponse struct {
	Path       string    `json:"path" doc:"File that failed"`
	Message    string    `json:"message" doc:"Underlying error text"`
	Code       string    `json:"code" doc:"Error code"`
	Resolution string    `json:"resolution,omitempty" doc:"Operator answer: skip or retry"`
	At         time.Time `json:"at" doc:"When the failure happened"`
}

// RunResponse contains run data in API responses.
type RunResponse struct {
	ID          string              `json:"id" doc:"Run ID"`
	Input       string              `json:"input" doc:"Archive or directory being reconciled"`
	WorkDir     string              `json:"work_dir,omitempty" doc:"Directory the archive was extracted to"`
	State       string              `json:"state" doc:"Lifecycle state"`
	Summary     domain.RunSummary   `json:"summary" doc:"Counters"`
	Errors      []FileErrorResponse `json:"errors" doc:"Acknowledged file errors"`
	Pending     *FileErrorResponse  `json:"pending,omitempty" doc:"Error waiting for acknowledgment"`
	Failure     string              `json:"failure,omitempty" doc:"Fatal error of a failed run"`
	StartedAt   time.Time           `json:"started_at" doc:"Start time"`
	UpdatedAt   time.Time           `json:"updated_at" doc:"Last state change"`
	CompletedAt *time.Time          `json:"completed_at,omitempty" doc:"End time"`
}

// RunOutput wraps a run for Huma.
type RunOutput struct {
	Body RunResponse
}

// StartRunInput wraps the start request for Huma.
type StartRunInput struct {
	Body service.StartRunRequest
}

// ListRunsInput contains pagination parameters.
type ListRunsInput struct {
	Limit  int    `query:"limit" minimum:"0" maximum:"500" doc:"Page size (default 50)"`
	Cursor string `query:"cursor" doc:"Cursor from a previous page"`
}

// ListRunsResponse is one page of runs.
type ListRunsResponse struct {
	Runs       []RunResponse `json:"runs" doc:"Runs, newest first"`
	NextCursor string        `json:"next_cursor,omitempty" doc:"Cursor for the next page"`
	HasMore    bool          `json:"has_more" doc:"Whether another page exists"`
}

// ListRunsOutput wraps the list for Huma.
type ListRunsOutput struct {
	Body ListRunsResponse
}

// RunIDInput identifies a run.
type RunIDInput struct {
	ID string `path:"id" doc:"Run ID"`
}

// AckRequestBody is the operator's answer.
type AckRequestBody struct {
	Action string `json:"action" enum:"skip,retry" doc:"skip leaves the file untouched, retry attempts it again"`
}

// AckRunInput wraps an acknowledgment for Huma.
type AckRunInput struct {
	ID   string `path:"id" doc:"Run ID"`
	Body AckRequestBody
}

// === Handlers ===

func (s *Server) handleStartRun(ctx context.Context, input *StartRunInput) (*RunOutput, error) {
	run, err := s.runs.Start(ctx, input.Body)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &RunOutput{Body: toRunResponse(run)}, nil
}

func (s *Server) handleListRuns(ctx context.Context, input *ListRunsInput) (*ListRunsOutput, error) {
	page, err := s.runs.List(ctx, store.PaginationParams{Limit: input.Limit, Cursor: input.Cursor})
	if err != nil {
		return nil, toAPIError(err)
	}

	resp := ListRunsResponse{
		Runs:       make([]RunResponse, 0, len(page.Items)),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}
	for _, run := range page.Items {
		resp.Runs = append(resp.Runs, toRunResponse(run))
	}
	return &ListRunsOutput{Body: resp}, nil
}

func (s *Server) handleGetRun(ctx context.Context, input *RunIDInput) (*RunOutput, error) {
	run, err := s.runs.Get(ctx, input.ID)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &RunOutput{Body: toRunResponse(run)}, nil
}

func (s *Server) handleAckRun(ctx context.Context, input *AckRunInput) (*RunOutput, error) {
	run, err := s.runs.Ack(ctx, service.AckRequest{RunID: input.ID, Action: input.Body.Action})
	if err != nil {
		return nil, toAPIError(err)
	}
	return &RunOutput{Body: toRunResponse(run)}, nil
}

func (s *Server) handleCancelRun(ctx context.Context, input *RunIDInput) (*RunOutput, error) {
	run, err := s.runs.Cancel(ctx, input.ID)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &RunOutput{Body: toRunResponse(run)}, nil
}

func toRunResponse(run *domain.Run) RunResponse {
	resp := RunResponse{
		ID:          run.ID,
		Input:       run.Input,
		WorkDir:     run.WorkDir,
		State:       string(run.State),
		Summary:     run.Summary,
		Errors:      make([]FileErrorResponse, 0, len(run.Errors)),
		Failure:     run.Failure,
		StartedAt:   run.StartedAt,
		UpdatedAt:   run.UpdatedAt,
		CompletedAt: run.CompletedAt,
	}
	for _, fe := range run.Errors {
		resp.Errors = append(resp.Errors, toFileErrorResponse(fe))
	}
	if run.Pending != nil {
		p := toFileErrorResponse(*run.Pending)
		resp.Pending = &p
	}
	return resp
}

func toFileErrorResponse(fe domain.FileError) FileErrorResponse {
	return FileErrorResponse(fe)
}
