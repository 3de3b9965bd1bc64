package retriever

import (
	"errors"
	"fmt"
)

var (
	// ErrLanguageUndetermined is returned for an on-demand track without a language
	ErrLanguageUndetermined = errors.New("unable to determine language")
	// ErrLanguageNotFound is returned when the page had no on-demand data for the language
	ErrLanguageNotFound = errors.New("failed to fetch subtitles for specified language")
)

// LazyResolutionError carries an error reported by the page while computing
// on-demand track data
type LazyResolutionError struct {
	Language string
	Message  string
}

func (e *LazyResolutionError) Error() string {
	return e.Message
}

// HTTPError is returned for a non-success response to a track or segment fetch
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("Subtitle Retrieval failed with Status %d/%s...", e.StatusCode, e.Status)
}

// FetchError is returned when a track could not be fetched at all
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// BatchError aborts a whole batch retrieval
type BatchError struct {
	Err error
}

func (e *BatchError) Error() string {
	return "Data Sync failed: " + e.Err.Error()
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Skippable reports whether err only drops the failing track from a batch.
// HTTP status failures are not skippable.
func Skippable(err error) bool {
	var lazyErr *LazyResolutionError
	var fetchErr *FetchError

	switch {
	case errors.Is(err, ErrLanguageUndetermined), errors.Is(err, ErrLanguageNotFound):
		return true
	case errors.As(err, &lazyErr), errors.As(err, &fetchErr):
		return true
	default:
		return false
	}
}

// SkipReason is the metrics label for a skippable error
func SkipReason(err error) string {
	var lazyErr *LazyResolutionError

	switch {
	case errors.Is(err, ErrLanguageUndetermined):
		return "language_undetermined"
	case errors.Is(err, ErrLanguageNotFound), errors.As(err, &lazyErr):
		return "lazy_resolution_failed"
	default:
		return "fetch_error"
	}
}
