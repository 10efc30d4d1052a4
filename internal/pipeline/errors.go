// Package pipeline holds the error taxonomy and terminal result shared by the
// transcoder, the live recorder and the live capture processor.
package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind identifies why a pipeline run ended without producing output.
// Every kind is terminal; none is retried.
type ErrorKind int

// Error kinds.
const (
	KindUnknown ErrorKind = iota
	KindSourceUnavailable
	KindSourceTrackMissing
	KindCompositionFailure
	KindReaderCreationFailed
	KindWriterCreationFailed
	KindVideoInputRejected
	KindAudioInputRejected
	KindVideoOutputRejected
	KindAudioOutputRejected
	KindReaderFailed
	KindWriterFinalizeFailed
	KindUnknownCompletion
	KindPixelBufferExhausted
	KindCaptureUnavailable
	KindCancelled
)

var kindNames = map[ErrorKind]string{
	KindUnknown:              "unknown",
	KindSourceUnavailable:    "source_unavailable",
	KindSourceTrackMissing:   "source_track_missing",
	KindCompositionFailure:   "composition_failure",
	KindReaderCreationFailed: "reader_creation_failed",
	KindWriterCreationFailed: "writer_creation_failed",
	KindVideoInputRejected:   "video_input_rejected",
	KindAudioInputRejected:   "audio_input_rejected",
	KindVideoOutputRejected:  "video_output_rejected",
	KindAudioOutputRejected:  "audio_output_rejected",
	KindReaderFailed:         "reader_failed",
	KindWriterFinalizeFailed: "writer_finalize_failed",
	KindUnknownCompletion:    "unknown_completion_error",
	KindPixelBufferExhausted: "pixel_buffer_exhausted",
	KindCaptureUnavailable:   "capture_unavailable",
	KindCancelled:            "cancelled",
}

// String returns the snake_case name of the kind, as reported over the API.
func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is matching. An *Error matches the sentinel of its kind.
var (
	ErrSourceUnavailable    = &Error{Kind: KindSourceUnavailable}
	ErrSourceTrackMissing   = &Error{Kind: KindSourceTrackMissing}
	ErrCompositionFailure   = &Error{Kind: KindCompositionFailure}
	ErrReaderCreationFailed = &Error{Kind: KindReaderCreationFailed}
	ErrWriterCreationFailed = &Error{Kind: KindWriterCreationFailed}
	ErrVideoInputRejected   = &Error{Kind: KindVideoInputRejected}
	ErrAudioInputRejected   = &Error{Kind: KindAudioInputRejected}
	ErrVideoOutputRejected  = &Error{Kind: KindVideoOutputRejected}
	ErrAudioOutputRejected  = &Error{Kind: KindAudioOutputRejected}
	ErrReaderFailed         = &Error{Kind: KindReaderFailed}
	ErrWriterFinalizeFailed = &Error{Kind: KindWriterFinalizeFailed}
	ErrUnknownCompletion    = &Error{Kind: KindUnknownCompletion}
	ErrPixelBufferExhausted = &Error{Kind: KindPixelBufferExhausted}
	ErrCaptureUnavailable   = &Error{Kind: KindCaptureUnavailable}
	ErrCancelled            = &Error{Kind: KindCancelled}
)

// Error is a classified pipeline failure, optionally wrapping its cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

// NewError creates an Error of the given kind wrapping err.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a pipeline error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}
