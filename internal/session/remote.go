package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/subsync/internal/bridge"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// ErrNoClient is returned when an event that needs an answer reaches no
// subscriber
var ErrNoClient = errors.New("no client connected")

// Playback actions sent with bridge.EventPlayback
const (
	ActionPause             = "pause"
	ActionPlay              = "play"
	ActionExitFullscreen    = "exit-fullscreen"
	ActionRestoreFullscreen = "restore-fullscreen"
	ActionCaptureFocus      = "capture-focus"
	ActionRestoreFocus      = "restore-focus"
	ActionBindKeys          = "bind-keys"
	ActionUnbindKeys        = "unbind-keys"
	ActionHideSubtitles     = "hide-subtitles"
	ActionShowSubtitles     = "show-subtitles"
)

// PlaybackCommand is the payload of a playback event
type PlaybackCommand struct {
	Action   string `json:"action"`
	Captured *bool  `json:"captured,omitempty"`
}

// Visibility is the payload of a picker visibility event
type Visibility struct {
	Visible bool `json:"visible"`
}

// Notification is the payload of a notification event
type Notification struct {
	Message string `json:"message"`
}

// LanguageRequest is the payload of a lazy language data request
type LanguageRequest struct {
	Language string `json:"language"`
}

// PageReport carries page state observed by the client. Nil fields are
// left unchanged.
type PageReport struct {
	IsVideoPage *bool   `json:"isVideoPage,omitempty"`
	CanAutoSync *bool   `json:"canAutoSync,omitempty"`
	Title       *string `json:"title,omitempty"`
	Paused      *bool   `json:"paused,omitempty"`
	Fullscreen  *bool   `json:"fullscreen,omitempty"`
	Focused     *bool   `json:"focused,omitempty"`
	HTML        string  `json:"html,omitempty"`
}

// clientState is the last known state of the page, video and picker
type clientState struct {
	mu           sync.RWMutex
	videoPage    bool
	canAutoSync  bool
	title        string
	paused       bool
	fullscreen   bool
	focused      bool
	pickerLoaded bool
	pickerHidden bool
	picker       models.PickerState
}

func (s *clientState) apply(report PageReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if report.IsVideoPage != nil {
		s.videoPage = *report.IsVideoPage
	}
	if report.CanAutoSync != nil {
		s.canAutoSync = *report.CanAutoSync
	}
	if report.Title != nil {
		s.title = *report.Title
	}
	if report.Paused != nil {
		s.paused = *report.Paused
	}
	if report.Fullscreen != nil {
		s.fullscreen = *report.Fullscreen
	}
	if report.Focused != nil {
		s.focused = *report.Focused
	}
}

// remote publishes collaborator calls to the session's subscribers and
// answers queries from the state the client reported
type remote struct {
	id         string
	hub        *bridge.Hub
	correlator *bridge.Correlator
	state      *clientState
	discover   func(ctx context.Context) bool
	timeout    time.Duration
}

func (r *remote) publish(eventType string, data interface{}) int {
	return r.hub.Publish(r.id, bridge.Event{Type: eventType, Data: data})
}

func (r *remote) playback(action string) {
	r.publish(bridge.EventPlayback, PlaybackCommand{Action: action})
}

// Picker

func (r *remote) Show(ctx context.Context) error {
	r.state.mu.Lock()
	r.state.pickerLoaded = true
	r.state.pickerHidden = false
	r.state.mu.Unlock()

	r.publish(bridge.EventPickerVisibility, Visibility{Visible: true})
	return nil
}

func (r *remote) Hide(ctx context.Context) error {
	r.state.mu.Lock()
	r.state.pickerHidden = true
	r.state.mu.Unlock()

	r.publish(bridge.EventPickerVisibility, Visibility{Visible: false})
	return nil
}

func (r *remote) Hidden() bool {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	return !r.state.pickerLoaded || r.state.pickerHidden
}

func (r *remote) Loaded() bool {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	return r.state.pickerLoaded
}

func (r *remote) UpdateState(ctx context.Context, update models.PickerState) error {
	r.state.mu.Lock()
	r.state.picker.Merge(update)
	r.state.mu.Unlock()

	r.publish(bridge.EventPickerState, update)
	return nil
}

// Playback

func (r *remote) Paused() bool {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	return r.state.paused
}

func (r *remote) Pause() {
	r.state.mu.Lock()
	r.state.paused = true
	r.state.mu.Unlock()
	r.playback(ActionPause)
}

func (r *remote) Play() {
	r.state.mu.Lock()
	r.state.paused = false
	r.state.mu.Unlock()
	r.playback(ActionPlay)
}

func (r *remote) ExitFullscreen() bool {
	r.state.mu.Lock()
	was := r.state.fullscreen
	r.state.fullscreen = false
	r.state.mu.Unlock()

	if was {
		r.playback(ActionExitFullscreen)
	}
	return was
}

func (r *remote) RestoreFullscreen() {
	r.state.mu.Lock()
	r.state.fullscreen = true
	r.state.mu.Unlock()
	r.playback(ActionRestoreFullscreen)
}

func (r *remote) CaptureFocus() bool {
	r.state.mu.RLock()
	focused := r.state.focused
	r.state.mu.RUnlock()

	r.playback(ActionCaptureFocus)
	return focused
}

func (r *remote) RestoreFocus(captured bool) {
	r.publish(bridge.EventPlayback, PlaybackCommand{Action: ActionRestoreFocus, Captured: &captured})
}

func (r *remote) BindKeys()   { r.playback(ActionBindKeys) }
func (r *remote) UnbindKeys() { r.playback(ActionUnbindKeys) }

func (r *remote) ForceHideSubtitles(hide bool) {
	if hide {
		r.playback(ActionHideSubtitles)
		return
	}
	r.playback(ActionShowSubtitles)
}

func (r *remote) Notify(message string) {
	r.publish(bridge.EventNotification, Notification{Message: message})
}

// Page layer

func (r *remote) IsVideoPage() bool {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	return r.state.videoPage
}

func (r *remote) CanAutoSync() bool {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	return r.state.canAutoSync
}

func (r *remote) Title() string {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	return r.state.title
}

// RequestSyncedData starts server side discovery when it is available and
// otherwise asks the client to detect tracks
func (r *remote) RequestSyncedData(ctx context.Context) error {
	if r.discover != nil && r.discover(ctx) {
		return nil
	}
	if r.publish(bridge.EventGetSyncedData, nil) == 0 {
		return ErrNoClient
	}
	return nil
}

// RequestLanguageData asks the client for the tracks of a lazily loaded
// language and waits for its response
func (r *remote) RequestLanguageData(ctx context.Context, language string) (*models.VideoData, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	raw, err := r.correlator.Request(ctx, func(requestID string) error {
		delivered := r.hub.Publish(r.id, bridge.Event{
			Type:      bridge.EventGetLanguageData,
			RequestID: requestID,
			Data:      LanguageRequest{Language: language},
		})
		if delivered == 0 {
			return ErrNoClient
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var data models.VideoData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid language data: %w", err)
	}
	return &data, nil
}

// Extension

func (r *remote) OpenSettings(ctx context.Context) error {
	if r.publish(bridge.EventOpenSettings, nil) == 0 {
		return ErrNoClient
	}
	return nil
}

func (r *remote) SettingsUpdated(ctx context.Context) error {
	r.publish(bridge.EventSettingsUpdated, nil)
	return nil
}

// PublishSubtitlesLoaded forwards archived subtitles to the client
func (r *remote) PublishSubtitlesLoaded(ctx context.Context, event *models.SubtitlesLoadedEvent) error {
	if r.publish(bridge.EventSubtitlesLoaded, event) == 0 {
		return ErrNoClient
	}
	return nil
}

// inlineLoader sends the subtitle payloads straight to the client when no
// archive is configured
type inlineLoader struct {
	remote *remote
}

type inlineSubtitles struct {
	Files               []models.SubtitleFile `json:"files"`
	Flatten             bool                  `json:"flatten"`
	SyncWithAsbplayerID string                `json:"syncWithAsbplayerId,omitempty"`
}

func (l inlineLoader) LoadSubtitles(ctx context.Context, files []models.SubtitleFile, flatten bool, syncWithID string) error {
	delivered := l.remote.publish(bridge.EventSubtitlesLoaded, inlineSubtitles{
		Files:               files,
		Flatten:             flatten,
		SyncWithAsbplayerID: syncWithID,
	})
	if delivered == 0 {
		return ErrNoClient
	}
	return nil
}
