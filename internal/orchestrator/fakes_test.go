package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/internal/preferences"
	"github.com/therealutkarshpriyadarshi/subsync/internal/retriever"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

const testPageURL = "https://hianime.to/watch/frieren-18542?ep=107257"

type fakePicker struct {
	loaded  bool
	hidden  bool
	shows   int
	hides   int
	updates []models.PickerState
	current models.PickerState
}

func newFakePicker() *fakePicker {
	return &fakePicker{hidden: true}
}

func (p *fakePicker) Show(ctx context.Context) error {
	p.loaded = true
	p.hidden = false
	p.shows++
	return nil
}

func (p *fakePicker) Hide(ctx context.Context) error {
	p.hidden = true
	p.hides++
	return nil
}

func (p *fakePicker) Hidden() bool { return p.hidden }
func (p *fakePicker) Loaded() bool { return p.loaded }

func (p *fakePicker) UpdateState(ctx context.Context, state models.PickerState) error {
	p.updates = append(p.updates, state)
	p.current.Merge(state)
	return nil
}

type fakePlayback struct {
	paused        bool
	fullscreen    bool
	focused       bool
	keysBound     bool
	subsHidden    bool
	plays         int
	pauses        int
	fullscreenOn  int
	focusRestores []bool
	notifications []string
}

func newFakePlayback() *fakePlayback {
	return &fakePlayback{keysBound: true, focused: true}
}

func (p *fakePlayback) Paused() bool { return p.paused }

func (p *fakePlayback) Pause() {
	p.paused = true
	p.pauses++
}

func (p *fakePlayback) Play() {
	p.paused = false
	p.plays++
}

func (p *fakePlayback) ExitFullscreen() bool {
	was := p.fullscreen
	p.fullscreen = false
	return was
}

func (p *fakePlayback) RestoreFullscreen() {
	p.fullscreen = true
	p.fullscreenOn++
}

func (p *fakePlayback) CaptureFocus() bool {
	was := p.focused
	p.focused = false
	return was
}

func (p *fakePlayback) RestoreFocus(captured bool) {
	p.focused = true
	p.focusRestores = append(p.focusRestores, captured)
}

func (p *fakePlayback) BindKeys()                    { p.keysBound = true }
func (p *fakePlayback) UnbindKeys()                  { p.keysBound = false }
func (p *fakePlayback) ForceHideSubtitles(hide bool) { p.subsHidden = hide }
func (p *fakePlayback) Notify(message string)        { p.notifications = append(p.notifications, message) }

type loadCall struct {
	files      []models.SubtitleFile
	flatten    bool
	syncWithID string
}

type fakeLoader struct {
	calls []loadCall
	err   error
}

func (l *fakeLoader) LoadSubtitles(ctx context.Context, files []models.SubtitleFile, flatten bool, syncWithID string) error {
	l.calls = append(l.calls, loadCall{files: files, flatten: flatten, syncWithID: syncWithID})
	return l.err
}

type fakePage struct {
	videoPage   bool
	canAutoSync bool
	title       string
	requests    int
	lazy        *models.VideoData
}

func (p *fakePage) IsVideoPage() bool { return p.videoPage }
func (p *fakePage) CanAutoSync() bool { return p.canAutoSync }
func (p *fakePage) Title() string     { return p.title }

func (p *fakePage) RequestSyncedData(ctx context.Context) error {
	p.requests++
	return nil
}

func (p *fakePage) RequestLanguageData(ctx context.Context, language string) (*models.VideoData, error) {
	if p.lazy == nil {
		return nil, errors.New("no data")
	}
	return p.lazy, nil
}

type fakeSettings struct {
	picker        models.PickerSettings
	apiKey        string
	activeProfile string
}

func (s *fakeSettings) PickerSettings(ctx context.Context) (models.PickerSettings, error) {
	return s.picker, nil
}

func (s *fakeSettings) APIKey(ctx context.Context) (string, error) {
	return s.apiKey, nil
}

func (s *fakeSettings) SetActiveProfile(ctx context.Context, profile string) error {
	s.activeProfile = profile
	s.picker.ActiveProfile = profile
	return nil
}

type fakeSite struct {
	info     *models.SiteInfo
	err      error
	resolves int
}

func (s *fakeSite) IsSupported(rawURL string) bool { return s.err == nil }

func (s *fakeSite) Resolve(ctx context.Context, rawURL string) (*models.SiteInfo, error) {
	s.resolves++
	if s.err != nil {
		return nil, s.err
	}
	info := *s.info
	return &info, nil
}

type fakeSearcher struct {
	id        int
	idErr     error
	results   []models.SearchResult
	searchErr error
	titles    []string
	ids       []int
}

func (s *fakeSearcher) ResolveExternalID(ctx context.Context, title string) (int, error) {
	s.titles = append(s.titles, title)
	return s.id, s.idErr
}

func (s *fakeSearcher) SearchSubtitles(ctx context.Context, externalID, episode int, apiKey string) ([]models.SearchResult, error) {
	s.ids = append(s.ids, externalID)
	return s.results, s.searchErr
}

type fakeExtension struct {
	openSettings    int
	settingsUpdated int
}

func (e *fakeExtension) OpenSettings(ctx context.Context) error {
	e.openSettings++
	return nil
}

func (e *fakeExtension) SettingsUpdated(ctx context.Context) error {
	e.settingsUpdated++
	return nil
}

type recordingPersister struct {
	saved map[string][]string
}

func (p *recordingPersister) SaveLanguagePreference(ctx context.Context, domain string, languages []string) error {
	if p.saved == nil {
		p.saved = map[string][]string{}
	}
	p.saved[domain] = languages
	return nil
}

type harness struct {
	orchestrator *Orchestrator
	picker       *fakePicker
	playback     *fakePlayback
	loader       *fakeLoader
	page         *fakePage
	settings     *fakeSettings
	site         *fakeSite
	searcher     *fakeSearcher
	extension    *fakeExtension
	prefs        *preferences.Store
	persister    *recordingPersister
	server       *httptest.Server
}

type harnessOptions struct {
	autoSync bool
	prefs    map[string][]string
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/subs/ja.srt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("1\n00:00:01,000 --> 00:00:02,000\nこんにちは\n"))
	})
	mux.HandleFunc("/subs/en.srt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("1\n00:00:01,000 --> 00:00:02,000\nhello\n"))
	})
	mux.HandleFunc("/subs/missing.srt", http.NotFound)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	h := &harness{
		picker:    newFakePicker(),
		playback:  newFakePlayback(),
		loader:    &fakeLoader{},
		page:      &fakePage{videoPage: true, canAutoSync: true, title: "Watch Frieren"},
		settings:  &fakeSettings{picker: models.PickerSettings{ThemeType: "dark", Profiles: []string{"default", "anime"}}},
		site:      &fakeSite{info: &models.SiteInfo{Title: "Frieren", Episode: 3}},
		searcher:  &fakeSearcher{},
		extension: &fakeExtension{},
		persister: &recordingPersister{},
		server:    server,
	}
	h.prefs = preferences.NewStore(opts.prefs, h.persister)

	o, err := New(Config{
		PageURL:          testPageURL,
		AutoSync:         opts.autoSync,
		EmptyTrackLabel:  "None",
		SearchTrackLabel: "No subtitle",
		SearchLanguage:   "ja",
	}, Dependencies{
		Picker:      h.picker,
		Playback:    h.playback,
		Loader:      h.loader,
		Page:        h.page,
		Settings:    h.settings,
		Site:        h.site,
		Searcher:    h.searcher,
		Extension:   h.extension,
		Retriever:   retriever.New(nil, logging.Nop(), retriever.WithLazyResolver(h.page)),
		Preferences: h.prefs,
		Logger:      logging.Nop(),
	})
	require.NoError(t, err)
	h.orchestrator = o

	return h
}

func (h *harness) track(id, language, file string) models.SubtitleTrack {
	return models.SubtitleTrack{
		ID:        id,
		Language:  language,
		URL:       h.server.URL + "/subs/" + file,
		Label:     language + " label",
		Extension: models.SubtitleFormatSRT,
	}
}
