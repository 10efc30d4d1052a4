package transcode

import (
	"github.com/jmylchreest/brickify/internal/container"
	"github.com/jmylchreest/brickify/internal/pipeline"
)

// finalizer is the part of container.Writer used to close out a session.
type finalizer interface {
	Path() string
	Finalize() error
	Status() container.Status
	Err() error
	Cancel()
}

// finalize closes the writer and maps its terminal status onto a result.
func finalize(w finalizer) pipeline.Result {
	err := w.Finalize()
	switch w.Status() {
	case container.StatusCompleted:
		return pipeline.Success(w.Path())
	case container.StatusFailed:
		if err == nil {
			err = w.Err()
		}
		return pipeline.Failure(pipeline.NewError(pipeline.KindWriterFinalizeFailed, err))
	default:
		w.Cancel()
		return pipeline.Failure(pipeline.NewError(pipeline.KindUnknownCompletion, err))
	}
}
