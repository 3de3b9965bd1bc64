package models

// Sentinel values carried in SubtitleTrack fields
const (
	// EmptyTrackID marks the "no subtitle" track. The same value is used for
	// its language and url.
	EmptyTrackID = "-"
	// LazyURL marks a track whose content is computed on demand by the page.
	LazyURL = "lazy"
)

// SubtitleFormat constants
const (
	SubtitleFormatSRT  = "srt"
	SubtitleFormatVTT  = "vtt"
	SubtitleFormatASS  = "ass"
	SubtitleFormatM3U8 = "m3u8"
)

// SubtitleTrack represents one candidate subtitle source detected for a video
type SubtitleTrack struct {
	ID        string `json:"id"`
	Language  string `json:"language"`
	URL       string `json:"url"`
	Label     string `json:"label"`
	Extension string `json:"extension"`
	LocalFile bool   `json:"localFile,omitempty"`
}

// EmptyTrack returns the "no subtitle" sentinel track with the given label
func EmptyTrack(label string) SubtitleTrack {
	return SubtitleTrack{
		ID:        EmptyTrackID,
		Language:  EmptyTrackID,
		URL:       EmptyTrackID,
		Label:     label,
		Extension: SubtitleFormatSRT,
	}
}

// IsEmpty reports whether the track is the "no subtitle" sentinel
func (t SubtitleTrack) IsEmpty() bool {
	return t.URL == EmptyTrackID
}

// IsLazy reports whether the track content must be fetched on demand
func (t SubtitleTrack) IsLazy() bool {
	return t.URL == LazyURL
}

// IsManifest reports whether the track points at a segmented HLS manifest
func (t SubtitleTrack) IsManifest() bool {
	return t.Extension == SubtitleFormatM3U8
}

// ConfirmedTrack is a track the user picked in the picker, carrying the
// file name chosen for it
type ConfirmedTrack struct {
	SubtitleTrack
	Name string `json:"name"`
}

// VideoData is the snapshot of subtitle choices detected for the current page.
// A nil Subtitles slice means the page is still loading, an empty one means
// loading finished without finding anything.
type VideoData struct {
	Basename  string          `json:"basename"`
	Subtitles []SubtitleTrack `json:"subtitles"`
	Error     string          `json:"error,omitempty"`
}

// Loaded reports whether track detection has finished
func (v *VideoData) Loaded() bool {
	return v != nil && v.Subtitles != nil
}

// TrackForLanguage returns the first track with the given language
func (v *VideoData) TrackForLanguage(language string) (SubtitleTrack, bool) {
	if v == nil {
		return SubtitleTrack{}, false
	}
	for _, track := range v.Subtitles {
		if track.Language == language {
			return track, true
		}
	}
	return SubtitleTrack{}, false
}

// SubtitleFile is a retrieved subtitle payload. Segmented tracks expand into
// several files sharing one name.
type SubtitleFile struct {
	Name    string `json:"name"`
	Payload []byte `json:"payload"`
}

// MatchResult holds the tracks auto-selected for each preference slot
type MatchResult struct {
	AutoSelectedTracks []SubtitleTrack `json:"autoSelectedTracks"`
	CompleteMatch      bool            `json:"completeMatch"`
}

// SelectedIDs returns the track id for every slot
func (m MatchResult) SelectedIDs() []string {
	ids := make([]string, len(m.AutoSelectedTracks))
	for i, track := range m.AutoSelectedTracks {
		ids[i] = track.ID
		if ids[i] == "" {
			ids[i] = EmptyTrackID
		}
	}
	return ids
}
