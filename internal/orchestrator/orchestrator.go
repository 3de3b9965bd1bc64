package orchestrator

import (
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/internal/preferences"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// State is the position of the orchestrator in the sync cycle
type State string

// State constants. A resolved cycle returns straight to StateIdle.
const (
	StateIdle               State = "idle"
	StateWaitingForData     State = "waitingForData"
	StateAutoSyncAttempting State = "autoSyncAttempting"
	StatePrompting          State = "prompting"
)

// ErrNotVideoPage is returned when subtitles are requested off a video page
var ErrNotVideoPage = errors.New("page is not a video page")

// Config holds per-page orchestrator settings
type Config struct {
	PageURL          string
	AutoSync         bool
	EmptyTrackLabel  string
	SearchTrackLabel string
	SearchLanguage   string
}

// Dependencies are the collaborators an orchestrator drives. Site, Searcher
// and Extension are optional.
type Dependencies struct {
	Picker      Picker
	Playback    Playback
	Loader      SubtitleLoader
	Page        PageLayer
	Settings    Settings
	Site        SiteIdentity
	Searcher    Searcher
	Extension   Extension
	Retriever   TrackRetriever
	Preferences *preferences.Store
	Logger      *logging.Logger
}

// ShowOptions describes why the picker is being opened
type ShowOptions struct {
	Reason          models.OpenReason
	FromAsbplayerID string
}

// SettingsUpdate carries refreshed settings
type SettingsUpdate struct {
	AutoSync            bool
	LanguagePreferences map[string][]string
}

// Orchestrator sequences detection, matching, prompting and retrieval for
// the video on one page
type Orchestrator struct {
	pageURL        string
	domain         string
	emptyTrack     models.SubtitleTrack
	searchTrack    models.SubtitleTrack
	searchLanguage string

	picker    Picker
	playback  Playback
	loader    SubtitleLoader
	page      PageLayer
	settings  Settings
	site      SiteIdentity
	searcher  Searcher
	extension Extension
	retriever TrackRetriever
	prefs     *preferences.Store
	logger    *logging.Logger

	mu                sync.Mutex
	state             State
	autoSync          bool
	listening         bool
	syncedData        *models.VideoData
	autoSyncAttempted bool
	episode           *int
	isAnimeSite       bool
	wasPaused         *bool
	fullscreen        bool
	focusCaptured     bool
	// details is the site lookup of the current cycle, failures included
	details *siteDetails
}

// New creates an orchestrator for the page at cfg.PageURL
func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	u, err := url.Parse(cfg.PageURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid page url %q", cfg.PageURL)
	}

	switch {
	case deps.Picker == nil, deps.Playback == nil, deps.Loader == nil, deps.Page == nil,
		deps.Settings == nil, deps.Retriever == nil, deps.Preferences == nil:
		return nil, errors.New("orchestrator: missing required collaborator")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	language := cfg.SearchLanguage
	if language == "" {
		language = "ja"
	}

	return &Orchestrator{
		pageURL:        cfg.PageURL,
		domain:         u.Host,
		emptyTrack:     models.EmptyTrack(cfg.EmptyTrackLabel),
		searchTrack:    models.EmptyTrack(cfg.SearchTrackLabel),
		searchLanguage: language,
		picker:         deps.Picker,
		playback:       deps.Playback,
		loader:         deps.Loader,
		page:           deps.Page,
		settings:       deps.Settings,
		site:           deps.Site,
		searcher:       deps.Searcher,
		extension:      deps.Extension,
		retriever:      deps.Retriever,
		prefs:          deps.Preferences,
		logger:         logger.WithDomain(u.Host),
		state:          StateIdle,
		autoSync:       cfg.AutoSync,
	}, nil
}

// Domain returns the host preferences are remembered under
func (o *Orchestrator) Domain() string {
	return o.domain
}

// State returns the current state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SyncedData returns a copy of the current snapshot, or nil
func (o *Orchestrator) SyncedData() *models.VideoData {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.syncedData == nil {
		return nil
	}
	data := *o.syncedData
	return &data
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	previous := o.state
	o.state = state
	o.mu.Unlock()

	if previous != state {
		o.logger.LogSyncEvent("transition", string(state), map[string]interface{}{"from": string(previous)})
	}
}

func (o *Orchestrator) snapshot() (*models.VideoData, *int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.syncedData, o.episode, o.isAnimeSite
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
