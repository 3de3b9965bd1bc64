package retriever

import (
	"context"

	"github.com/therealutkarshpriyadarshi/subsync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// SkippedTrack is a track dropped from a batch without aborting it
type SkippedTrack struct {
	Name string
	Err  error
}

// BatchResult is the combined output of a batch retrieval
type BatchResult struct {
	Files []models.SubtitleFile
	// Flatten is set when any track is a segmented manifest, whose parts the
	// consumer must treat as one subtitle
	Flatten bool
	Skipped []SkippedTrack
}

// RetrieveAll retrieves every track in order and concatenates the files.
// Fetch and on-demand failures drop only their track; any other failure
// aborts the batch with a *BatchError.
func (r *Retriever) RetrieveAll(ctx context.Context, tracks []TrackRequest) (*BatchResult, error) {
	result := &BatchResult{}

	for _, track := range tracks {
		if track.Extension == models.SubtitleFormatM3U8 {
			result.Flatten = true
		}

		files, err := r.Retrieve(ctx, track)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &BatchError{Err: ctx.Err()}
			}
			if !Skippable(err) {
				return nil, &BatchError{Err: err}
			}

			reason := SkipReason(err)
			metrics.RecordTrackSkipped(reason)
			r.logger.WithTrack(track.Name, track.Language).
				WithError(err).
				WithField("reason", reason).
				Warn("track skipped")
			result.Skipped = append(result.Skipped, SkippedTrack{Name: track.Name, Err: err})
			continue
		}

		result.Files = append(result.Files, files...)
	}

	return result, nil
}

// Requests builds track requests from confirmed picker tracks
func Requests(tracks []models.ConfirmedTrack) []TrackRequest {
	requests := make([]TrackRequest, len(tracks))
	for i, track := range tracks {
		requests[i] = Request(track.Name, track.SubtitleTrack)
	}
	return requests
}

// Request builds a track request for track saved under name
func Request(name string, track models.SubtitleTrack) TrackRequest {
	return TrackRequest{
		Name:      name,
		Language:  track.Language,
		Extension: track.Extension,
		URL:       track.URL,
		LocalFile: track.LocalFile,
	}
}

// DefaultName is the file name used for an auto-selected track
func DefaultName(basename string, track models.SubtitleTrack) string {
	if track.IsEmpty() {
		return basename
	}
	if basename != "" {
		return basename + " - " + track.Label
	}
	return track.Label
}
