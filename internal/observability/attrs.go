package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/brickify/internal/pipeline"
)

// Err is the attribute used for errors in every log record.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// Result groups a pipeline outcome under "result": the output location on
// success, the error kind and message on failure.
func Result(res pipeline.Result) slog.Attr {
	if res.OK() {
		return slog.Group("result",
			slog.Bool("ok", true),
			slog.String("location", res.Location))
	}
	return slog.Group("result",
		slog.Bool("ok", false),
		slog.String("kind", res.Kind().String()),
		Err(res.Err))
}

// TimedOperationWithError logs the start and end of an operation with its
// duration. The error pointer is read when the returned function runs, so it
// sees errors assigned after this call.
//
//	var err error
//	defer observability.TimedOperationWithError(ctx, logger, "transcode", &err)()
//
//nolint:gocritic // errPtr must be a pointer to capture errors set after this call
func TimedOperationWithError(ctx context.Context, logger *slog.Logger, operation string, errPtr *error) func() {
	start := time.Now()
	logger = logger.With(slog.String("operation", operation))
	logger.InfoContext(ctx, "operation started")

	return func() {
		elapsed := slog.Duration("duration", time.Since(start))
		if errPtr != nil && *errPtr != nil {
			logger.ErrorContext(ctx, "operation failed", elapsed, Err(*errPtr))
			return
		}
		logger.InfoContext(ctx, "operation completed", elapsed)
	}
}
