package model

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingUnavailable is returned when the embedding provider cannot
	// produce a vector. The cycle fails closed and leaves no partial state.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrStaleCentroid is returned when a centroid update carries a version
	// that no longer matches the stored narrative.
	ErrStaleCentroid = errors.New("narrative centroid version is stale")

	// ErrInsufficientData is returned when scoring is requested for a
	// narrative that has no aggregated windows yet.
	ErrInsufficientData = errors.New("no aggregated windows for narrative")

	// ErrWindowNotClosed is returned when a cycle is requested for a window
	// that is not safely closed yet.
	ErrWindowNotClosed = errors.New("window is not closed yet")
)

// ValidationError reports a raw mention rejected by normalization.
// It never aborts a batch, rejected mentions are skipped and counted.
type ValidationError struct {
	Source   string `json:"source"`
	SourceID string `json:"source_id"`
	Field    string `json:"field"`
	Reason   string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid mention %s/%s: %s %s", e.Source, e.SourceID, e.Field, e.Reason)
}
