package orchestrator

import (
	"context"
	"fmt"

	"github.com/therealutkarshpriyadarshi/subsync/internal/matcher"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

type siteDetails struct {
	title      string
	episode    *int
	externalID int
}

// siteDetails asks the site identity for title and episode once per cycle.
// Failures only leave the suggestion empty and are not retried until the
// next cycle.
func (o *Orchestrator) siteDetails(ctx context.Context) siteDetails {
	if o.site == nil {
		return siteDetails{}
	}

	o.mu.Lock()
	cached := o.details
	o.mu.Unlock()
	if cached != nil {
		return *cached
	}

	details := o.resolveSite(ctx)
	if ctx.Err() == nil {
		o.mu.Lock()
		o.details = &details
		o.mu.Unlock()
	}
	return details
}

func (o *Orchestrator) resolveSite(ctx context.Context) siteDetails {
	info, err := o.site.Resolve(ctx, o.pageURL)
	if err != nil {
		o.logger.WithError(err).Debug("site details unavailable")
		return siteDetails{}
	}

	episode := info.Episode
	return siteDetails{title: info.Title, episode: &episode, externalID: info.ExternalID}
}

// Show opens the picker with a freshly built model
func (o *Orchestrator) Show(ctx context.Context, opts ShowOptions) error {
	info := o.siteDetails(ctx)

	extra := models.PickerState{
		Open:       models.Bool(true),
		OpenReason: opts.Reason,
	}
	if opts.FromAsbplayerID != "" {
		extra.OpenedFromAsbplayerID = models.String(opts.FromAsbplayerID)
	}

	if err := o.prepareShow(ctx, info); err != nil {
		return err
	}
	o.setState(StatePrompting)

	return o.picker.UpdateState(ctx, o.buildModel(ctx, info, extra))
}

func (o *Orchestrator) buildModel(ctx context.Context, info siteDetails, extra models.PickerState) models.PickerState {
	data, episode, isAnimeSite := o.snapshot()

	choices := []models.SubtitleTrack{}
	if data.Loaded() {
		choices = data.Subtitles
	}
	match := matcher.Match(o.prefs.Get(o.domain), choices, o.emptyTrack)

	settings, err := o.settings.PickerSettings(ctx)
	if err != nil {
		o.logger.WithError(err).Warn("failed to read picker settings")
	}

	model := models.PickerState{
		SelectedSubtitle:      match.SelectedIDs(),
		Subtitles:             choices,
		DefaultCheckboxState:  models.Bool(match.CompleteMatch),
		OpenedFromAsbplayerID: models.String(""),
		Settings:              &settings,
		IsAnimeSite:           models.Bool(isAnimeSite),
	}

	if data != nil {
		model.IsLoading = models.Bool(!data.Loaded())
		model.SuggestedName = models.String(firstNonEmpty(info.title, data.Basename))
		model.Error = models.String(data.Error)
		model.Episode = episode
		if info.episode != nil {
			model.Episode = info.episode
		}
	} else {
		model.IsLoading = models.Bool(true)
		model.SuggestedName = models.String(firstNonEmpty(info.title, o.page.Title()))
		model.Error = models.String("")
		model.ShowSubSelect = models.Bool(true)
		model.Episode = episode
	}

	model.Merge(extra)
	return model
}

// prepareShow shows the picker and takes the player out of the way. The
// pause, fullscreen and focus state captured here survives until the next
// hideAndResume, across repeated calls.
func (o *Orchestrator) prepareShow(ctx context.Context, info siteDetails) error {
	if err := o.picker.Show(ctx); err != nil {
		return fmt.Errorf("failed to show picker: %w", err)
	}

	isAnimeSite := o.site != nil && o.site.IsSupported(o.pageURL)

	o.mu.Lock()
	o.isAnimeSite = isAnimeSite
	basename := ""
	if o.syncedData != nil {
		basename = o.syncedData.Basename
	}
	o.mu.Unlock()

	update := models.PickerState{
		Open:          models.Bool(true),
		IsAnimeSite:   models.Bool(isAnimeSite),
		SuggestedName: models.String(firstNonEmpty(info.title, basename, o.page.Title())),
		Episode:       info.episode,
	}
	if err := o.picker.UpdateState(ctx, update); err != nil {
		o.logger.WithError(err).Warn("failed to update picker")
	}

	paused := o.playback.Paused()
	o.playback.Pause()
	exitedFullscreen := o.playback.ExitFullscreen()
	focusCaptured := o.playback.CaptureFocus()

	o.mu.Lock()
	if o.wasPaused == nil {
		o.wasPaused = &paused
	}
	o.fullscreen = o.fullscreen || exitedFullscreen
	o.focusCaptured = o.focusCaptured || focusCaptured
	o.mu.Unlock()

	o.playback.UnbindKeys()
	o.playback.ForceHideSubtitles(true)
	return nil
}

// hideAndResume closes the picker and restores the player state captured by
// prepareShow, ending the cycle
func (o *Orchestrator) hideAndResume(ctx context.Context) {
	o.playback.BindKeys()
	o.playback.ForceHideSubtitles(false)
	if err := o.picker.Hide(ctx); err != nil {
		o.logger.WithError(err).Warn("failed to hide picker")
	}

	o.mu.Lock()
	fullscreen := o.fullscreen
	focusCaptured := o.focusCaptured
	wasPaused := o.wasPaused
	o.fullscreen = false
	o.focusCaptured = false
	o.wasPaused = nil
	o.mu.Unlock()

	if fullscreen {
		o.playback.RestoreFullscreen()
	}
	o.playback.RestoreFocus(focusCaptured)
	if wasPaused == nil || !*wasPaused {
		o.playback.Play()
	}

	o.setState(StateIdle)
}
