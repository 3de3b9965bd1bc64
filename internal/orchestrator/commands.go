package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/therealutkarshpriyadarshi/subsync/internal/bridge"
	"github.com/therealutkarshpriyadarshi/subsync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/subsync/internal/retriever"
	"github.com/therealutkarshpriyadarshi/subsync/internal/search"
	"github.com/therealutkarshpriyadarshi/subsync/internal/tracing"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// HandleCommand reacts to a message from the picker. Confirm and open-file
// resolve the cycle on success; search and update-episode keep the picker
// open. Unknown commands are ignored.
func (o *Orchestrator) HandleCommand(ctx context.Context, cmd bridge.Command) error {
	if cmd == nil {
		return nil
	}

	span, ctx := tracing.StartSpan(ctx, "orchestrator.command")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "command", cmd.Name())

	var synced bool

	switch c := cmd.(type) {
	case bridge.OpenSettings:
		if o.extension == nil {
			return nil
		}
		return o.extension.OpenSettings(ctx)

	case bridge.ActiveProfile:
		if err := o.settings.SetActiveProfile(ctx, c.Profile); err != nil {
			return fmt.Errorf("failed to set active profile: %w", err)
		}
		if o.extension == nil {
			return nil
		}
		return o.extension.SettingsUpdated(ctx)

	case bridge.Confirm:
		synced = o.confirm(ctx, c)

	case bridge.OpenFile:
		synced = o.openFile(ctx, c)

	case bridge.UpdateEpisode:
		episode := c.Episode
		o.mu.Lock()
		o.episode = &episode
		o.mu.Unlock()
		return o.picker.UpdateState(ctx, models.PickerState{Episode: &episode, Open: models.Bool(true)})

	case bridge.Search:
		o.search(ctx, c)
		return nil

	default:
		o.logger.WithField("command", cmd.Name()).Debug("ignoring unknown command")
		return nil
	}

	if synced {
		o.hideAndResume(ctx)
	}
	return nil
}

func (o *Orchestrator) confirm(ctx context.Context, c bridge.Confirm) bool {
	if c.ShouldRememberTrackChoices {
		languages := make([]string, 0, len(c.Data))
		for _, track := range c.Data {
			if track.Language != "" {
				languages = append(languages, track.Language)
			}
		}
		if err := o.prefs.Set(ctx, o.domain, languages); err != nil {
			o.logger.WithError(err).Warn("failed to remember track choices")
		}
	}

	return o.syncTracks(ctx, retriever.Requests(c.Data), c.SyncWithAsbplayerID, "confirm")
}

func (o *Orchestrator) openFile(ctx context.Context, c bridge.OpenFile) bool {
	if err := o.loader.LoadSubtitles(ctx, c.Subtitles, false, ""); err != nil {
		metrics.RecordSync("open_file", "failed")
		o.reportError(ctx, err.Error())
		return false
	}
	metrics.RecordSync("open_file", "success")
	return true
}

// search replaces the snapshot tracks with remote search results; errors
// stay visible in the picker
func (o *Orchestrator) search(ctx context.Context, c bridge.Search) {
	o.updatePicker(ctx, models.PickerState{
		IsLoading: models.Bool(true),
		Error:     models.String(""),
		Open:      models.Bool(true),
	})

	info := o.siteDetails(ctx)
	results, err := o.searchSubtitles(ctx, c, info)
	if err != nil {
		o.logger.WithError(err).Warn("subtitle search failed")
		o.updatePicker(ctx, models.PickerState{
			Error:     models.String(err.Error()),
			IsLoading: models.Bool(false),
			Open:      models.Bool(true),
		})
		return
	}

	tracks := search.SearchTracks(results, o.searchTrack, o.searchLanguage)

	o.mu.Lock()
	basename := ""
	if o.syncedData != nil {
		basename = o.syncedData.Basename
	}
	o.syncedData = &models.VideoData{Basename: basename, Subtitles: tracks}
	o.mu.Unlock()

	episode := c.Episode
	o.updatePicker(ctx, models.PickerState{
		Subtitles:     tracks,
		IsLoading:     models.Bool(false),
		Episode:       &episode,
		Open:          models.Bool(true),
		SuggestedName: models.String(info.title),
	})
}

var errSearchUnavailable = errors.New("subtitle search is not configured")

func (o *Orchestrator) searchSubtitles(ctx context.Context, c bridge.Search, info siteDetails) ([]models.SearchResult, error) {
	if o.searcher == nil {
		return nil, errSearchUnavailable
	}

	apiKey, err := o.settings.APIKey(ctx)
	if err != nil {
		o.logger.WithError(err).Warn("failed to read api key")
	}

	externalID := 0
	if info.externalID != 0 && info.title == c.Title {
		externalID = info.externalID
	} else if externalID, err = o.searcher.ResolveExternalID(ctx, c.Title); err != nil {
		return nil, err
	}
	if externalID == 0 {
		return nil, search.ErrExternalIDNotFound
	}

	return o.searcher.SearchSubtitles(ctx, externalID, c.Episode, apiKey)
}

func (o *Orchestrator) updatePicker(ctx context.Context, state models.PickerState) {
	if err := o.picker.UpdateState(ctx, state); err != nil {
		o.logger.WithError(err).Warn("failed to update picker")
	}
}
