package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/subsync/internal/bridge"
	"github.com/therealutkarshpriyadarshi/subsync/internal/config"
	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/internal/orchestrator"
	"github.com/therealutkarshpriyadarshi/subsync/internal/sites"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

const pageURL = "https://hianime.to/watch/frieren-18542?ep=107257"

type fakeSite struct {
	supported bool
}

func (f fakeSite) IsSupported(rawURL string) bool { return f.supported }

func (f fakeSite) Resolve(ctx context.Context, rawURL string) (*models.SiteInfo, error) {
	if !f.supported {
		return nil, errors.New("unsupported")
	}
	return &models.SiteInfo{Title: "Frieren", Episode: 12}, nil
}

type fakeDiscovery struct {
	mu     sync.Mutex
	calls  int
	apiKey string
	data   *models.VideoData
}

func (f *fakeDiscovery) VideoData(ctx context.Context, pageURL, apiKey string) *models.VideoData {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.apiKey = apiKey
	return f.data
}

type memoryProgress struct {
	mu      sync.Mutex
	entries map[string]map[string]int
	cleared []string
}

func newMemoryProgress() *memoryProgress {
	return &memoryProgress{entries: map[string]map[string]int{}}
}

func (m *memoryProgress) SetRetrievalProgress(ctx context.Context, sessionID, name string, percent int, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[sessionID] == nil {
		m.entries[sessionID] = map[string]int{}
	}
	m.entries[sessionID][name] = percent
	return nil
}

func (m *memoryProgress) GetRetrievalProgress(ctx context.Context, sessionID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	progress := map[string]int{}
	for name, percent := range m.entries[sessionID] {
		progress[name] = percent
	}
	return progress, nil
}

func (m *memoryProgress) ClearRetrievalProgress(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	m.cleared = append(m.cleared, sessionID)
	return nil
}

type harness struct {
	manager  *Manager
	hub      *bridge.Hub
	settings *MemorySettings
	progress *memoryProgress
}

func newHarness(t *testing.T, configure func(*Options)) *harness {
	t.Helper()

	h := &harness{
		hub:      bridge.NewHub(),
		settings: NewMemorySettings(),
		progress: newMemoryProgress(),
	}
	opts := Options{
		Sync: config.SyncConfig{
			EmptyTrackLabel:  "None",
			SearchTrackLabel: "Search",
			SearchLanguage:   "ja",
		},
		Hub:             h.hub,
		Settings:        h.settings.ForOwner,
		Progress:        h.progress,
		ResponseTimeout: time.Second,
		Logger:          logging.Nop(),
	}
	if configure != nil {
		configure(&opts)
	}
	h.manager = NewManager(opts)
	t.Cleanup(func() { h.manager.Shutdown(context.Background()) })
	return h
}

func (h *harness) open(t *testing.T) (*Session, <-chan bridge.Event) {
	t.Helper()

	s, err := h.manager.Open(context.Background(), "user-1", pageURL)
	require.NoError(t, err)

	events, cancel := s.Subscribe()
	t.Cleanup(cancel)
	return s, events
}

func drain(events <-chan bridge.Event) []bridge.Event {
	var out []bridge.Event
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func ofType(events []bridge.Event, eventType string) []bridge.Event {
	var out []bridge.Event
	for _, ev := range events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func TestOpenRejectsInvalidURL(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.manager.Open(context.Background(), "user-1", "/relative")
	assert.Error(t, err)
	assert.Equal(t, 0, h.manager.Len())
}

func TestRequestSubtitlesAsksClient(t *testing.T) {
	h := newHarness(t, nil)
	s, events := h.open(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.RequestSubtitles(ctx), orchestrator.ErrNotVideoPage)

	require.NoError(t, s.Report(PageReport{IsVideoPage: models.Bool(true)}))
	require.NoError(t, s.RequestSubtitles(ctx))

	assert.Len(t, ofType(drain(events), bridge.EventGetSyncedData), 1)
	assert.Equal(t, orchestrator.StateWaitingForData, s.Snapshot().State)
}

func TestRequestSubtitlesWithoutClient(t *testing.T) {
	h := newHarness(t, nil)
	s, err := h.manager.Open(context.Background(), "user-1", pageURL)
	require.NoError(t, err)

	require.NoError(t, s.Report(PageReport{IsVideoPage: models.Bool(true)}))
	assert.ErrorIs(t, s.RequestSubtitles(context.Background()), ErrNoClient)
}

func TestAutoSyncDeliversLocalFileInline(t *testing.T) {
	h := newHarness(t, nil)
	h.settings.Save(&models.Settings{
		Owner:               "user-1",
		ThemeType:           "dark",
		AutoSync:            true,
		LanguagePreferences: map[string][]string{"hianime.to": {"ja"}},
	})

	s, events := h.open(t)
	ctx := context.Background()

	require.NoError(t, s.Report(PageReport{
		IsVideoPage: models.Bool(true),
		CanAutoSync: models.Bool(true),
	}))
	require.NoError(t, s.RequestSubtitles(ctx))

	blobURL := s.RegisterFile([]byte("1\n00:00:01,000 --> 00:00:02,000\nこんにちは\n"))
	require.NoError(t, s.SyncedData(ctx, &models.VideoData{
		Basename: "Frieren",
		Subtitles: []models.SubtitleTrack{
			{ID: "1", Language: "ja", URL: blobURL, Label: "Japanese", Extension: "srt", LocalFile: true},
		},
	}))

	loaded := ofType(drain(events), bridge.EventSubtitlesLoaded)
	require.Len(t, loaded, 1)

	payload, ok := loaded[0].Data.(inlineSubtitles)
	require.True(t, ok)
	require.Len(t, payload.Files, 1)
	assert.Equal(t, "Frieren - Japanese.srt", payload.Files[0].Name)
	assert.Contains(t, string(payload.Files[0].Payload), "こんにちは")
	assert.Equal(t, orchestrator.StateIdle, s.Snapshot().State)
}

func TestLanguageDataRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	s, events := h.open(t)

	go func() {
		for ev := range events {
			request, ok := ev.Data.(LanguageRequest)
			if ev.Type != bridge.EventGetLanguageData || !ok || request.Language != "fr" {
				continue
			}
			s.Respond(ev.RequestID, json.RawMessage(`{"basename":"Frieren","subtitles":[{"id":"2","language":"fr","url":"https://cdn.example/fr.vtt","label":"French","extension":"vtt"}]}`))
			return
		}
	}()

	data, err := s.remote.RequestLanguageData(context.Background(), "fr")
	require.NoError(t, err)
	require.Len(t, data.Subtitles, 1)
	assert.Equal(t, "https://cdn.example/fr.vtt", data.Subtitles[0].URL)
}

func TestLanguageDataTimesOut(t *testing.T) {
	h := newHarness(t, func(opts *Options) { opts.ResponseTimeout = 20 * time.Millisecond })
	s, _ := h.open(t)

	_, err := s.remote.RequestLanguageData(context.Background(), "fr")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, s.Respond("unknown", json.RawMessage(`{}`)))
}

func TestShowPausesPlaybackAndOpensPicker(t *testing.T) {
	h := newHarness(t, func(opts *Options) { opts.Site = fakeSite{supported: true} })
	s, events := h.open(t)
	ctx := context.Background()

	require.NoError(t, s.Report(PageReport{
		Paused:     models.Bool(false),
		Fullscreen: models.Bool(true),
		Focused:    models.Bool(true),
	}))
	require.NoError(t, s.Show(ctx, orchestrator.ShowOptions{Reason: models.OpenReasonUserRequested}))

	published := drain(events)
	visibility := ofType(published, bridge.EventPickerVisibility)
	require.Len(t, visibility, 1)
	assert.Equal(t, Visibility{Visible: true}, visibility[0].Data)

	var actions []string
	for _, ev := range ofType(published, bridge.EventPlayback) {
		actions = append(actions, ev.Data.(PlaybackCommand).Action)
	}
	assert.Equal(t, []string{ActionPause, ActionExitFullscreen, ActionCaptureFocus, ActionUnbindKeys, ActionHideSubtitles}, actions)

	snapshot := s.Snapshot()
	assert.True(t, snapshot.PickerVisible)
	assert.Equal(t, orchestrator.StatePrompting, snapshot.State)
	require.NotNil(t, snapshot.Picker.SuggestedName)
	assert.Equal(t, "Frieren", *snapshot.Picker.SuggestedName)
	require.NotNil(t, snapshot.Picker.IsAnimeSite)
	assert.True(t, *snapshot.Picker.IsAnimeSite)
}

func TestCommandOpenSettings(t *testing.T) {
	h := newHarness(t, nil)
	s, events := h.open(t)
	ctx := context.Background()

	require.NoError(t, s.Command(ctx, []byte(`{"command":"open-settings"}`)))
	assert.Len(t, ofType(drain(events), bridge.EventOpenSettings), 1)

	err := s.Command(ctx, []byte(`{"command":"unknown"}`))
	assert.ErrorIs(t, err, bridge.ErrUnknownCommand)
}

func TestDiscoveryFeedsSyncedData(t *testing.T) {
	discovery := &fakeDiscovery{data: &models.VideoData{
		Basename:  "Frieren",
		Subtitles: []models.SubtitleTrack{{ID: "0", Language: "ja", URL: "https://cdn.example/0.srt", Label: "[Erai] Frieren 12", Extension: "srt"}},
	}}
	h := newHarness(t, func(opts *Options) {
		opts.Site = fakeSite{supported: true}
		opts.Discovery = discovery
	})
	h.settings.Save(&models.Settings{Owner: "user-1", APIKey: "secret"})

	s, events := h.open(t)
	require.NoError(t, s.Report(PageReport{IsVideoPage: models.Bool(true)}))
	require.NoError(t, s.RequestSubtitles(context.Background()))

	assert.Eventually(t, func() bool {
		return s.Snapshot().SyncedData.Loaded()
	}, 2*time.Second, 10*time.Millisecond)

	assert.Empty(t, ofType(drain(events), bridge.EventGetSyncedData))
	discovery.mu.Lock()
	assert.Equal(t, 1, discovery.calls)
	assert.Equal(t, "secret", discovery.apiKey)
	discovery.mu.Unlock()
}

func TestProgressIsNotifiedAndStored(t *testing.T) {
	h := newHarness(t, nil)
	s, events := h.open(t)
	ctx := context.Background()

	s.reportProgress(time.Minute)(ctx, "Frieren - Japanese", 40)

	notifications := ofType(drain(events), bridge.EventNotification)
	require.Len(t, notifications, 1)
	assert.Equal(t, Notification{Message: "Frieren - Japanese (40%)"}, notifications[0].Data)

	progress, err := s.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Frieren - Japanese": 40}, progress)
}

func TestReportUpdatesSnapshotSource(t *testing.T) {
	snapshots := sites.NewSnapshotSource()
	h := newHarness(t, func(opts *Options) { opts.Snapshots = snapshots })
	s, _ := h.open(t)
	ctx := context.Background()

	require.NoError(t, s.Report(PageReport{Title: models.String("Frieren"), HTML: `<h2 class="film-name"><a>Frieren</a></h2>`}))
	page, err := snapshots.Page(ctx, pageURL)
	require.NoError(t, err)
	assert.Equal(t, "Frieren", page.Text("h2.film-name > a"))
	assert.Equal(t, "Frieren", s.remote.Title())

	require.NoError(t, h.manager.Close(ctx, s.ID))
	page, err = snapshots.Page(ctx, pageURL)
	require.NoError(t, err)
	assert.Empty(t, page.Text("h2.film-name > a"))
}

func TestCloseReleasesSession(t *testing.T) {
	h := newHarness(t, nil)
	s, events := h.open(t)
	ctx := context.Background()

	require.NoError(t, h.manager.Close(ctx, s.ID))

	_, err := h.manager.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, h.manager.Close(ctx, s.ID), ErrNotFound)
	assert.Equal(t, []string{s.ID}, h.progress.cleared)

	_, ok := <-events
	assert.False(t, ok)
}

func TestListAndSettingsChanged(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, events := h.open(t)
	second, _ := h.open(t)
	_, err := h.manager.Open(ctx, "user-2", pageURL)
	require.NoError(t, err)

	listed := h.manager.List("user-1")
	require.Len(t, listed, 2)
	assert.Equal(t, first.ID, listed[0].ID)
	assert.Equal(t, second.ID, listed[1].ID)

	require.NoError(t, first.Show(ctx, orchestrator.ShowOptions{Reason: models.OpenReasonUserRequested}))
	drain(events)

	h.settings.Save(&models.Settings{Owner: "user-1", ThemeType: "light", Profiles: []string{"anime"}})
	h.manager.SettingsChanged(ctx, "user-1")

	updates := ofType(drain(events), bridge.EventPickerState)
	require.Len(t, updates, 1)
	state := updates[0].Data.(models.PickerState)
	require.NotNil(t, state.Settings)
	assert.Equal(t, "light", state.Settings.ThemeType)
	assert.Equal(t, []string{"anime"}, state.Settings.Profiles)
}

func TestMemorySettings(t *testing.T) {
	store := NewMemorySettings()
	source := store.ForOwner("user-1")
	ctx := context.Background()

	settings, err := source.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dark", settings.ThemeType)
	assert.True(t, settings.UpdatedAt.IsZero())

	assert.Error(t, source.SetActiveProfile(ctx, "missing"))

	store.Save(&models.Settings{Owner: "user-1", Profiles: []string{"anime"}})
	require.NoError(t, source.SetActiveProfile(ctx, "anime"))

	prefs := map[string][]string{"hianime.to": {"ja", "-"}}
	require.NoError(t, source.SaveLanguagePreferences(ctx, prefs))
	prefs["hianime.to"][0] = "mutated"

	picker, err := source.PickerSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "anime", picker.ActiveProfile)

	settings, err = source.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ja", "-"}, settings.LanguagePreferences["hianime.to"])
	assert.False(t, settings.UpdatedAt.IsZero())
}

func TestRememberedChoicesSurviveConcurrentSessions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, err := h.manager.Open(ctx, "user-1", "https://a.example/watch/1")
	require.NoError(t, err)
	second, err := h.manager.Open(ctx, "user-1", "https://b.example/watch/1")
	require.NoError(t, err)

	confirm := func(s *Session, language string) {
		t.Helper()
		events, cancel := s.Subscribe()
		defer cancel()

		blobURL := s.RegisterFile([]byte("1\n00:00:01,000 --> 00:00:02,000\nhello\n"))
		raw, err := json.Marshal(map[string]interface{}{
			"command": bridge.CommandConfirm,
			"data": []models.ConfirmedTrack{{
				SubtitleTrack: models.SubtitleTrack{ID: "1", Language: language, URL: blobURL, Label: language, Extension: "srt", LocalFile: true},
				Name:          "episode",
			}},
			"shouldRememberTrackChoices": true,
		})
		require.NoError(t, err)
		require.NoError(t, s.Command(ctx, raw))
		assert.Len(t, ofType(drain(events), bridge.EventSubtitlesLoaded), 1)
	}

	confirm(first, "ja")
	confirm(second, "en")

	stored, err := h.settings.ForOwner("user-1").Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"a.example": {"ja"},
		"b.example": {"en"},
	}, stored.LanguagePreferences)
}

func TestEmptyLoadedSnapshotClearsPickerTracks(t *testing.T) {
	h := newHarness(t, nil)
	s, events := h.open(t)
	ctx := context.Background()

	require.NoError(t, s.Report(PageReport{IsVideoPage: models.Bool(true)}))
	require.NoError(t, s.Show(ctx, orchestrator.ShowOptions{Reason: models.OpenReasonUserRequested}))
	require.NoError(t, s.RequestSubtitles(ctx))
	drain(events)

	require.NoError(t, s.SyncedData(ctx, &models.VideoData{Basename: "Frieren", Subtitles: []models.SubtitleTrack{}}))

	updates := ofType(drain(events), bridge.EventPickerState)
	require.NotEmpty(t, updates)

	raw, err := json.Marshal(updates[len(updates)-1])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"subtitles":[]`)
	assert.Contains(t, string(raw), `"isLoading":false`)
	assert.NotNil(t, s.Snapshot().Picker.Subtitles)
	assert.Empty(t, s.Snapshot().Picker.Subtitles)
}
