package matcher

import (
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// Match reconciles remembered per-slot language preferences with the tracks
// available on the page. Every slot starts out as the empty track; a slot
// preferring EmptyTrackID is satisfied without consuming a track, any other
// slot takes the first available track with the same language. The same
// track may end up in several slots.
func Match(preferences []string, available []models.SubtitleTrack, empty models.SubtitleTrack) models.MatchResult {
	result := models.MatchResult{
		AutoSelectedTracks: make([]models.SubtitleTrack, len(preferences)),
	}
	for i := range result.AutoSelectedTracks {
		result.AutoSelectedTracks[i] = empty
	}

	if len(available) == 0 && allEmpty(preferences) {
		result.CompleteMatch = true
		return result
	}

	satisfied := 0
	for i, language := range preferences {
		for _, track := range available {
			if language == models.EmptyTrackID {
				satisfied++
				break
			}
			if track.Language == language {
				result.AutoSelectedTracks[i] = track
				satisfied++
				break
			}
		}
	}

	result.CompleteMatch = satisfied == len(preferences)
	return result
}

func allEmpty(preferences []string) bool {
	for _, language := range preferences {
		if language != models.EmptyTrackID {
			return false
		}
	}
	return true
}
