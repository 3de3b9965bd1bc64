package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/therealutkarshpriyadarshi/subsync/internal/matcher"
	"github.com/therealutkarshpriyadarshi/subsync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/subsync/internal/retriever"
	"github.com/therealutkarshpriyadarshi/subsync/internal/tracing"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// RequestSubtitles starts a detection cycle: the previous snapshot is
// dropped and the page is asked for fresh track data
func (o *Orchestrator) RequestSubtitles(ctx context.Context) error {
	if !o.page.IsVideoPage() {
		return ErrNotVideoPage
	}

	o.mu.Lock()
	o.syncedData = nil
	o.autoSyncAttempted = false
	o.listening = true
	o.details = nil
	o.mu.Unlock()

	o.setState(StateWaitingForData)
	return o.page.RequestSyncedData(ctx)
}

// OnSyncedData receives a detection result from the page. The first loaded
// snapshot of a cycle triggers auto-sync when enabled; later ones only
// refresh an open picker.
func (o *Orchestrator) OnSyncedData(ctx context.Context, data *models.VideoData) error {
	span, ctx := tracing.StartSpan(ctx, "orchestrator.synced_data")
	defer tracing.FinishSpan(span)

	canAutoSync := o.canAutoSync()

	o.mu.Lock()
	if !o.listening {
		o.mu.Unlock()
		o.logger.Debug("synced data ignored, not listening")
		return nil
	}
	o.syncedData = data

	if data.Loaded() && canAutoSync {
		if o.autoSyncAttempted {
			o.mu.Unlock()
			return nil
		}
		o.autoSyncAttempted = true
		o.mu.Unlock()

		o.setState(StateAutoSyncAttempting)
		return o.autoSyncTracks(ctx, data)
	}
	o.mu.Unlock()

	if o.picker.Loaded() {
		model := o.buildModel(ctx, o.siteDetails(ctx), models.PickerState{})
		return o.picker.UpdateState(ctx, model)
	}
	return nil
}

func (o *Orchestrator) canAutoSync() bool {
	o.mu.Lock()
	autoSync := o.autoSync
	o.mu.Unlock()

	return autoSync && o.page.CanAutoSync()
}

func (o *Orchestrator) autoSyncTracks(ctx context.Context, data *models.VideoData) error {
	result := matcher.Match(o.prefs.Get(o.domain), data.Subtitles, o.emptyTrack)
	metrics.RecordMatch(result.CompleteMatch)

	if !result.CompleteMatch {
		return o.Show(ctx, ShowOptions{Reason: models.OpenReasonFailedToAutoLoadPreferred})
	}

	requests := make([]retriever.TrackRequest, len(result.AutoSelectedTracks))
	for i, track := range result.AutoSelectedTracks {
		requests[i] = retriever.Request(retriever.DefaultName(data.Basename, track), track)
	}

	if !o.syncTracks(ctx, requests, "", "auto") {
		return nil
	}
	if !o.picker.Hidden() {
		o.hideAndResume(ctx)
		return nil
	}
	o.setState(StateIdle)
	return nil
}

// syncTracks retrieves and loads a batch. Failures are shown in the picker
// and reported as false.
func (o *Orchestrator) syncTracks(ctx context.Context, requests []retriever.TrackRequest, syncWithID, trigger string) bool {
	result, err := o.retriever.RetrieveAll(ctx, requests)
	if err != nil {
		metrics.RecordSync(trigger, "failed")
		o.reportError(ctx, batchMessage(err))
		return false
	}

	for _, skipped := range result.Skipped {
		o.playback.Notify(fmt.Sprintf("%s: %s", skipped.Name, skipped.Err))
	}

	if err := o.loader.LoadSubtitles(ctx, result.Files, result.Flatten, syncWithID); err != nil {
		metrics.RecordSync(trigger, "failed")
		o.reportError(ctx, batchMessage(err))
		return false
	}

	metrics.RecordSync(trigger, "success")
	o.logger.LogSyncEvent("subtitles_loaded", trigger, map[string]interface{}{
		"files":   len(result.Files),
		"flatten": result.Flatten,
		"skipped": len(result.Skipped),
	})
	return true
}

func batchMessage(err error) string {
	var batchErr *retriever.BatchError
	if errors.As(err, &batchErr) {
		return batchErr.Error()
	}
	return (&retriever.BatchError{Err: err}).Error()
}

// reportError reopens the picker showing message
func (o *Orchestrator) reportError(ctx context.Context, message string) {
	o.logger.WithField("error", message).Warn("sync failed")

	if err := o.prepareShow(ctx, o.siteDetails(ctx)); err != nil {
		o.logger.WithError(err).Error("failed to reopen picker")
	}
	o.setState(StatePrompting)

	err := o.picker.UpdateState(ctx, models.PickerState{
		Open:          models.Bool(true),
		IsLoading:     models.Bool(false),
		ShowSubSelect: models.Bool(true),
		Error:         models.String(message),
	})
	if err != nil {
		o.logger.WithError(err).Error("failed to report error to picker")
	}
}

// Unbind stops listening for detection results and drops the snapshot
func (o *Orchestrator) Unbind() {
	o.mu.Lock()
	o.listening = false
	o.syncedData = nil
	o.mu.Unlock()

	o.setState(StateIdle)
}

// UpdateSettings applies refreshed settings and pushes them to a loaded picker
func (o *Orchestrator) UpdateSettings(ctx context.Context, update SettingsUpdate) error {
	o.mu.Lock()
	o.autoSync = update.AutoSync
	o.mu.Unlock()

	if update.LanguagePreferences != nil {
		o.prefs.Replace(update.LanguagePreferences)
	}

	if !o.picker.Loaded() {
		return nil
	}

	settings, err := o.settings.PickerSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	return o.picker.UpdateState(ctx, models.PickerState{Settings: &settings})
}
