package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Failure categories surfaced by the pipeline. Match with errors.Is.
var (
	ErrNotFound          = eris.New("not found")
	ErrResolution        = eris.New("resolution error")
	ErrInvalidParameter  = eris.New("invalid parameter")
	ErrRateLimitExceeded = eris.New("rate limit exceeded")
	ErrFetch             = eris.New("fetch error")
	ErrInsufficientData  = eris.New("insufficient data")
)

// Stage names used in StageError.
const (
	StageResolve  = "resolve"
	StageSearch   = "search"
	StageExtract  = "extract"
	StageEnrich   = "enrich"
	StageCluster  = "cluster"
	StageClassify = "classify"
)

// StageError annotates a fatal pipeline error with the stage that failed and
// the query parameters, so callers can retry or report.
type StageError struct {
	Stage  string
	Params map[string]any
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s stage failed %v: %v", e.Stage, e.Params, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
