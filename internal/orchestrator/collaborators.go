package orchestrator

import (
	"context"

	"github.com/therealutkarshpriyadarshi/subsync/internal/retriever"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// Picker is the track selection surface
type Picker interface {
	// Show makes the picker visible, creating it if needed
	Show(ctx context.Context) error
	Hide(ctx context.Context) error
	Hidden() bool
	// Loaded reports whether the picker exists and can take state updates
	Loaded() bool
	UpdateState(ctx context.Context, state models.PickerState) error
}

// Playback controls the video being synced
type Playback interface {
	Paused() bool
	Pause()
	Play()
	// ExitFullscreen leaves fullscreen and reports whether it was active
	ExitFullscreen() bool
	RestoreFullscreen()
	// CaptureFocus remembers the focused element and reports whether there was one
	CaptureFocus() bool
	// RestoreFocus refocuses the captured element, or the window when nothing was captured
	RestoreFocus(captured bool)
	BindKeys()
	UnbindKeys()
	ForceHideSubtitles(hide bool)
	Notify(message string)
}

// SubtitleLoader hands retrieved files to the player
type SubtitleLoader interface {
	LoadSubtitles(ctx context.Context, files []models.SubtitleFile, flatten bool, syncWithID string) error
}

// PageLayer is the content script side of the page
type PageLayer interface {
	retriever.LazyResolver
	IsVideoPage() bool
	CanAutoSync() bool
	Title() string
	// RequestSyncedData asks the page to detect tracks; the result arrives
	// through OnSyncedData
	RequestSyncedData(ctx context.Context) error
}

// Settings reads and writes the user settings the orchestrator needs
type Settings interface {
	PickerSettings(ctx context.Context) (models.PickerSettings, error)
	APIKey(ctx context.Context) (string, error)
	SetActiveProfile(ctx context.Context, profile string) error
}

// SiteIdentity answers which anime is playing on the page
type SiteIdentity interface {
	IsSupported(rawURL string) bool
	Resolve(ctx context.Context, rawURL string) (*models.SiteInfo, error)
}

// Searcher looks up remote subtitles
type Searcher interface {
	ResolveExternalID(ctx context.Context, title string) (int, error)
	SearchSubtitles(ctx context.Context, externalID, episode int, apiKey string) ([]models.SearchResult, error)
}

// Extension forwards messages to the browser extension
type Extension interface {
	OpenSettings(ctx context.Context) error
	SettingsUpdated(ctx context.Context) error
}

// TrackRetriever turns track requests into files
type TrackRetriever interface {
	RetrieveAll(ctx context.Context, tracks []retriever.TrackRequest) (*retriever.BatchResult, error)
}
