package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/brickify/internal/live"
	"github.com/jmylchreest/brickify/internal/observability"
	"github.com/jmylchreest/brickify/internal/pipeline"
)

// LiveController is the live capture surface the handlers drive.
// *live.Processor implements it.
type LiveController interface {
	Stats() live.Stats
	Latest() (live.Published, bool)
	Subscribe(ctx context.Context) <-chan live.Published
	IncreaseBlockSize() int
	DecreaseBlockSize() int
	TakePhoto(ctx context.Context) (string, error)
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) (pipeline.Result, error)
}

// LiveHandler handles live capture endpoints.
type LiveHandler struct {
	live LiveController
}

// NewLiveHandler creates a new live handler.
func NewLiveHandler(controller LiveController) *LiveHandler {
	return &LiveHandler{live: controller}
}

// Register registers the live routes with the API.
func (h *LiveHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getLiveStatus",
		Method:      "GET",
		Path:        "/api/v1/live",
		Summary:     "Live status",
		Description: "Returns capture availability, the current block size and frame counters",
		Tags:        []string{"Live"},
	}, h.GetStatus)

	huma.Register(api, huma.Operation{
		OperationID: "increaseBlockSize",
		Method:      "POST",
		Path:        "/api/v1/live/block-size/increase",
		Summary:     "Increase block size",
		Description: "Steps the live block size up, clamped to the configured maximum",
		Tags:        []string{"Live"},
	}, h.IncreaseBlockSize)

	huma.Register(api, huma.Operation{
		OperationID: "decreaseBlockSize",
		Method:      "POST",
		Path:        "/api/v1/live/block-size/decrease",
		Summary:     "Decrease block size",
		Description: "Steps the live block size down, clamped to the configured minimum",
		Tags:        []string{"Live"},
	}, h.DecreaseBlockSize)

	huma.Register(api, huma.Operation{
		OperationID: "takePhoto",
		Method:      "POST",
		Path:        "/api/v1/live/photo",
		Summary:     "Take photo",
		Description: "Saves the latest processed frame and returns its location",
		Tags:        []string{"Live"},
	}, h.TakePhoto)

	huma.Register(api, huma.Operation{
		OperationID: "startRecording",
		Method:      "POST",
		Path:        "/api/v1/live/recording/start",
		Summary:     "Start recording",
		Description: "Starts recording processed frames to a new fMP4 file",
		Tags:        []string{"Live"},
	}, h.StartRecording)

	huma.Register(api, huma.Operation{
		OperationID: "stopRecording",
		Method:      "POST",
		Path:        "/api/v1/live/recording/stop",
		Summary:     "Stop recording",
		Description: "Finalizes the current recording and returns its location or error kind",
		Tags:        []string{"Live"},
	}, h.StopRecording)
}

// LiveStatusResponse is the live processor status.
type LiveStatusResponse struct {
	Available      bool       `json:"available" doc:"Whether the capture source started"`
	BlockSize      int        `json:"block_size" doc:"Current block size in pixels"`
	Captured       uint64     `json:"frames_captured"`
	Rendered       uint64     `json:"frames_rendered"`
	Dropped        uint64     `json:"frames_dropped"`
	RenderFailures uint64     `json:"render_failures"`
	Sequence       uint64     `json:"sequence" doc:"Sequence number of the latest processed frame"`
	Recording      bool       `json:"recording"`
	Subscribers    int        `json:"preview_subscribers"`
	LastFrameAt    *time.Time `json:"last_frame_at,omitempty"`
}

// GetLiveStatusInput is the input for the live status endpoint.
type GetLiveStatusInput struct{}

// GetLiveStatusOutput is the output for the live status endpoint.
type GetLiveStatusOutput struct {
	Body LiveStatusResponse
}

// GetStatus returns the live processor status.
func (h *LiveHandler) GetStatus(ctx context.Context, input *GetLiveStatusInput) (*GetLiveStatusOutput, error) {
	stats := h.live.Stats()
	resp := LiveStatusResponse{
		Available:      stats.Available,
		BlockSize:      stats.BlockSize,
		Captured:       stats.Captured,
		Rendered:       stats.Rendered,
		Dropped:        stats.Dropped,
		RenderFailures: stats.RenderFailures,
		Sequence:       stats.Sequence,
		Recording:      stats.Recording,
		Subscribers:    stats.Subscribers,
	}
	if pub, ok := h.live.Latest(); ok {
		at := pub.At.UTC()
		resp.LastFrameAt = &at
	}
	return &GetLiveStatusOutput{Body: resp}, nil
}

// BlockSizeInput is the input for the block size endpoints.
type BlockSizeInput struct{}

// BlockSizeOutput is the output for the block size endpoints.
type BlockSizeOutput struct {
	Body struct {
		BlockSize int `json:"block_size"`
	}
}

// IncreaseBlockSize steps the block size up.
func (h *LiveHandler) IncreaseBlockSize(ctx context.Context, input *BlockSizeInput) (*BlockSizeOutput, error) {
	out := &BlockSizeOutput{}
	out.Body.BlockSize = h.live.IncreaseBlockSize()
	return out, nil
}

// DecreaseBlockSize steps the block size down.
func (h *LiveHandler) DecreaseBlockSize(ctx context.Context, input *BlockSizeInput) (*BlockSizeOutput, error) {
	out := &BlockSizeOutput{}
	out.Body.BlockSize = h.live.DecreaseBlockSize()
	return out, nil
}

// TakePhotoInput is the input for the photo endpoint.
type TakePhotoInput struct{}

// TakePhotoOutput is the output for the photo endpoint.
type TakePhotoOutput struct {
	Body struct {
		Location string `json:"location" doc:"Path of the saved snapshot"`
	}
}

// TakePhoto saves the latest processed frame.
func (h *LiveHandler) TakePhoto(ctx context.Context, input *TakePhotoInput) (*TakePhotoOutput, error) {
	path, err := h.live.TakePhoto(ctx)
	if err != nil {
		return nil, liveError(ctx, "failed to take photo", err)
	}
	out := &TakePhotoOutput{}
	out.Body.Location = path
	return out, nil
}

// RecordingInput is the input for the recording endpoints.
type RecordingInput struct{}

// StartRecordingOutput is the output for starting a recording.
type StartRecordingOutput struct {
	Body struct {
		Recording bool `json:"recording"`
	}
}

// StartRecording starts a recording.
func (h *LiveHandler) StartRecording(ctx context.Context, input *RecordingInput) (*StartRecordingOutput, error) {
	if err := h.live.StartRecording(ctx); err != nil {
		return nil, liveError(ctx, "failed to start recording", err)
	}
	out := &StartRecordingOutput{}
	out.Body.Recording = true
	return out, nil
}

// StopRecordingOutput is the output for stopping a recording.
type StopRecordingOutput struct {
	Body ResultResponse
}

// StopRecording finalizes the current recording. A recording that failed to
// finalize is still a successful request; the result carries the error kind.
func (h *LiveHandler) StopRecording(ctx context.Context, input *RecordingInput) (*StopRecordingOutput, error) {
	res, err := h.live.StopRecording(ctx)
	if err != nil {
		return nil, liveError(ctx, "failed to stop recording", err)
	}
	if !res.OK() {
		observability.LoggerFromContext(ctx).WarnContext(ctx, "recording did not finalize", observability.Result(res))
	}
	return &StopRecordingOutput{Body: ResultFromPipeline(res)}, nil
}

// liveError maps processor errors to HTTP errors. Unexpected errors are
// logged with the request logger.
func liveError(ctx context.Context, msg string, err error) error {
	switch {
	case errors.Is(err, pipeline.ErrCaptureUnavailable), errors.Is(err, live.ErrClosed):
		return huma.Error503ServiceUnavailable("capture unavailable", err)
	case errors.Is(err, live.ErrNoSaver):
		return huma.Error501NotImplemented("snapshots are not configured", err)
	case errors.Is(err, live.ErrNoFrame):
		return huma.Error409Conflict("no frame has been processed yet", err)
	case errors.Is(err, live.ErrAlreadyRecording), errors.Is(err, live.ErrNotRecording):
		return huma.Error409Conflict(err.Error(), err)
	default:
		observability.LoggerFromContext(ctx).ErrorContext(ctx, msg, observability.Err(err))
		return huma.Error500InternalServerError(msg, err)
	}
}
