package handlers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jmylchreest/brickify/internal/http/middleware"
	"github.com/jmylchreest/brickify/internal/live"
	"github.com/jmylchreest/brickify/internal/observability"
	"github.com/jmylchreest/brickify/internal/snapshot"
)

const previewBoundary = "brickifyframe"

// FrameSource provides processed live frames.
type FrameSource interface {
	Latest() (live.Published, bool)
	Subscribe(ctx context.Context) <-chan live.Published
}

// PreviewHandler serves processed live frames as JPEG images.
type PreviewHandler struct {
	frames FrameSource
	logger *slog.Logger
}

// NewPreviewHandler creates a new preview handler.
func NewPreviewHandler(frames FrameSource) *PreviewHandler {
	return &PreviewHandler{frames: frames, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (h *PreviewHandler) WithLogger(logger *slog.Logger) *PreviewHandler {
	h.logger = logger
	return h
}

// RegisterRoutes registers the preview endpoints on a chi router. They stream
// binary bodies, which huma operations do not model.
func (h *PreviewHandler) RegisterRoutes(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/live/frame.jpg", h.handleFrame)
	router.Get("/live/preview.mjpeg", h.handleStream)
}

// handleFrame returns the latest processed frame.
func (h *PreviewHandler) handleFrame(w http.ResponseWriter, r *http.Request) {
	pub, ok := h.frames.Latest()
	if !ok {
		middleware.WriteProblem(w, http.StatusServiceUnavailable, "no frame has been processed yet")
		return
	}

	var buf bytes.Buffer
	if err := snapshot.Encode(&buf, pub.Processed, snapshot.FormatJPEG); err != nil {
		h.logger.ErrorContext(r.Context(), "encoding preview frame", observability.Err(err))
		middleware.WriteProblem(w, http.StatusInternalServerError, "")
		return
	}

	w.Header().Set("Content-Type", snapshot.FormatJPEG.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Sequence", strconv.FormatUint(pub.Sequence, 10))
	_, _ = w.Write(buf.Bytes())
}

// handleStream writes processed frames as multipart/x-mixed-replace until the
// client goes away or the processor closes. Slow clients skip frames.
func (h *PreviewHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+previewBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	rc := http.NewResponseController(w)
	frames := h.frames.Subscribe(ctx)

	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.DebugContext(ctx, "preview flush failed", observability.Err(err))
		return
	}

	var buf bytes.Buffer
	for pub := range frames {
		buf.Reset()
		if err := snapshot.Encode(&buf, pub.Processed, snapshot.FormatJPEG); err != nil {
			h.logger.WarnContext(ctx, "encoding preview frame",
				slog.Uint64("sequence", pub.Sequence),
				observability.Err(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
			previewBoundary, buf.Len()); err != nil {
			return
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			h.logger.DebugContext(ctx, "preview client went away", observability.Err(err))
			return
		}
	}
}
