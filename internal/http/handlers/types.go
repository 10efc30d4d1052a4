// Package handlers provides HTTP API handlers for brickify.
package handlers

import (
	"github.com/jmylchreest/brickify/internal/pipeline"
)

// ResultResponse is the terminal outcome of a pipeline run. Exactly one of
// Location and ErrorKind is set.
type ResultResponse struct {
	OK        bool   `json:"ok"`
	Location  string `json:"location,omitempty" doc:"Output path on success"`
	ErrorKind string `json:"error_kind,omitempty" doc:"Failure kind, e.g. source_track_missing"`
	Error     string `json:"error,omitempty"`
}

// ResultFromPipeline converts a pipeline result.
func ResultFromPipeline(res pipeline.Result) ResultResponse {
	if res.OK() {
		return ResultResponse{OK: true, Location: res.Location}
	}
	return ResultResponse{
		ErrorKind: res.Kind().String(),
		Error:     res.Err.Error(),
	}
}
