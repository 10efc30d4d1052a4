package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/jmylchreest/brickify/internal/service"
)

// TranscodeJobs tracks submitted transcodes. *service.TranscodeService
// implements it.
type TranscodeJobs interface {
	Submit(ctx context.Context, input string, blockSize int) (*service.TranscodeJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (*service.TranscodeJob, error)
	GetAll(ctx context.Context) []*service.TranscodeJob
	Cancel(ctx context.Context, id uuid.UUID) error
}

// TranscodeHandler handles transcode job endpoints.
type TranscodeHandler struct {
	jobs             TranscodeJobs
	defaultBlockSize int
}

// NewTranscodeHandler creates a new transcode handler. Requests without a
// block size use defaultBlockSize.
func NewTranscodeHandler(jobs TranscodeJobs, defaultBlockSize int) *TranscodeHandler {
	return &TranscodeHandler{jobs: jobs, defaultBlockSize: defaultBlockSize}
}

// Register registers the transcode routes with the API.
func (h *TranscodeHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "createTranscode",
		Method:        "POST",
		Path:          "/api/v1/transcodes",
		Summary:       "Submit transcode",
		Description:   "Starts rendering an fMP4 file with the brick effect. Audio is copied unchanged.",
		Tags:          []string{"Transcodes"},
		DefaultStatus: http.StatusAccepted,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "listTranscodes",
		Method:      "GET",
		Path:        "/api/v1/transcodes",
		Summary:     "List transcodes",
		Description: "Returns retained transcode jobs, newest first",
		Tags:        []string{"Transcodes"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getTranscode",
		Method:      "GET",
		Path:        "/api/v1/transcodes/{id}",
		Summary:     "Get transcode",
		Description: "Returns a transcode job and, once finished, its result",
		Tags:        []string{"Transcodes"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID:   "cancelTranscode",
		Method:        "DELETE",
		Path:          "/api/v1/transcodes/{id}",
		Summary:       "Cancel transcode",
		Description:   "Cancels a running transcode. Its result becomes cancelled and no file is kept.",
		Tags:          []string{"Transcodes"},
		DefaultStatus: http.StatusNoContent,
	}, h.Cancel)
}

// TranscodeJobResponse is a transcode job.
type TranscodeJobResponse struct {
	ID         string          `json:"id" doc:"Job ID (UUID)"`
	Input      string          `json:"input"`
	BlockSize  int             `json:"block_size"`
	Status     string          `json:"status" enum:"pending,running,completed,failed"`
	State      string          `json:"state" doc:"Transcoder state"`
	Result     *ResultResponse `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// TranscodeJobFromService converts a service job.
func TranscodeJobFromService(j *service.TranscodeJob) TranscodeJobResponse {
	resp := TranscodeJobResponse{
		ID:         j.ID.String(),
		Input:      j.Input,
		BlockSize:  j.BlockSize,
		Status:     string(j.Status),
		State:      j.State,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
	switch j.Status {
	case service.JobStatusCompleted:
		resp.Result = &ResultResponse{OK: true, Location: j.Output}
	case service.JobStatusFailed:
		resp.Result = &ResultResponse{ErrorKind: j.ErrorKind, Error: j.Error}
	}
	return resp
}

// CreateTranscodeInput is the input for submitting a transcode.
type CreateTranscodeInput struct {
	Body struct {
		Input     string `json:"input" minLength:"1" doc:"Path of the source fMP4 file"`
		BlockSize int    `json:"block_size,omitempty" minimum:"0" doc:"Block size in pixels, clamped to the configured range"`
	}
}

// TranscodeJobOutput is the output for a single job.
type TranscodeJobOutput struct {
	Body TranscodeJobResponse
}

// Create submits a transcode.
func (h *TranscodeHandler) Create(ctx context.Context, input *CreateTranscodeInput) (*TranscodeJobOutput, error) {
	blockSize := input.Body.BlockSize
	if blockSize == 0 {
		blockSize = h.defaultBlockSize
	}
	job, err := h.jobs.Submit(ctx, input.Body.Input, blockSize)
	if err != nil {
		if errors.Is(err, service.ErrEmptyInput) {
			return nil, huma.Error400BadRequest(err.Error(), err)
		}
		return nil, huma.Error500InternalServerError("failed to submit transcode", err)
	}
	return &TranscodeJobOutput{Body: TranscodeJobFromService(job)}, nil
}

// ListTranscodesInput is the input for listing jobs.
type ListTranscodesInput struct{}

// ListTranscodesOutput is the output for listing jobs.
type ListTranscodesOutput struct {
	Body struct {
		Jobs []TranscodeJobResponse `json:"jobs"`
	}
}

// List returns retained jobs.
func (h *TranscodeHandler) List(ctx context.Context, input *ListTranscodesInput) (*ListTranscodesOutput, error) {
	jobs := h.jobs.GetAll(ctx)
	resp := &ListTranscodesOutput{}
	resp.Body.Jobs = make([]TranscodeJobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp.Body.Jobs = append(resp.Body.Jobs, TranscodeJobFromService(j))
	}
	return resp, nil
}

// TranscodeIDInput identifies a job.
type TranscodeIDInput struct {
	ID string `path:"id" doc:"Job ID (UUID)"`
}

// GetByID returns a job by ID.
func (h *TranscodeHandler) GetByID(ctx context.Context, input *TranscodeIDInput) (*TranscodeJobOutput, error) {
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	job, err := h.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, jobError(input.ID, err)
	}
	return &TranscodeJobOutput{Body: TranscodeJobFromService(job)}, nil
}

// CancelTranscodeOutput is the (empty) output for cancelling a job.
type CancelTranscodeOutput struct{}

// Cancel stops a running job.
func (h *TranscodeHandler) Cancel(ctx context.Context, input *TranscodeIDInput) (*CancelTranscodeOutput, error) {
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	if err := h.jobs.Cancel(ctx, id); err != nil {
		return nil, jobError(input.ID, err)
	}
	return &CancelTranscodeOutput{}, nil
}

func jobError(id string, err error) error {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return huma.Error404NotFound(fmt.Sprintf("transcode %s not found", id))
	case errors.Is(err, service.ErrJobFinished):
		return huma.Error409Conflict(err.Error(), err)
	default:
		return huma.Error500InternalServerError("failed to get transcode", err)
	}
}
