package search

import (
	"context"
	"strconv"
	"time"

	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// SiteResolver extracts title and episode from a video page
type SiteResolver interface {
	Resolve(ctx context.Context, rawURL string) (*models.SiteInfo, error)
}

// Searcher is the remote metadata and subtitle search contract
type Searcher interface {
	ResolveExternalID(ctx context.Context, title string) (int, error)
	SearchSubtitles(ctx context.Context, externalID, episode int, apiKey string) ([]models.SearchResult, error)
}

// VideoDataCache stores provider results keyed by page url
type VideoDataCache interface {
	GetVideoData(ctx context.Context, pageURL string) (*models.VideoData, error)
	SetVideoData(ctx context.Context, pageURL string, data *models.VideoData, ttl time.Duration) error
}

// PageDataProvider discovers the subtitle tracks of an anime page by
// searching the remote services for the detected title and episode
type PageDataProvider struct {
	sites    SiteResolver
	searcher Searcher
	cache    VideoDataCache
	cacheTTL time.Duration
	language string
	logger   *logging.Logger
}

// NewPageDataProvider creates a provider; cache may be nil
func NewPageDataProvider(sites SiteResolver, searcher Searcher, cache VideoDataCache, cacheTTL time.Duration, language string, logger *logging.Logger) *PageDataProvider {
	return &PageDataProvider{
		sites:    sites,
		searcher: searcher,
		cache:    cache,
		cacheTTL: cacheTTL,
		language: language,
		logger:   logger,
	}
}

// VideoData returns the tracks found for pageURL. Failures are reported in
// the Error field rather than returned.
func (p *PageDataProvider) VideoData(ctx context.Context, pageURL, apiKey string) *models.VideoData {
	if p.cache != nil {
		if data, err := p.cache.GetVideoData(ctx, pageURL); err != nil {
			p.logger.WithError(err).Warn("video data cache lookup failed")
		} else if data != nil {
			return data
		}
	}

	data := &models.VideoData{Subtitles: []models.SubtitleTrack{}}

	info, err := p.sites.Resolve(ctx, pageURL)
	if err != nil {
		data.Error = err.Error()
		return data
	}
	data.Basename = info.Title

	externalID := info.ExternalID
	if externalID == 0 {
		externalID, err = p.searcher.ResolveExternalID(ctx, info.Title)
		if err != nil {
			data.Error = err.Error()
			return data
		}
	}

	results, err := p.searcher.SearchSubtitles(ctx, externalID, info.Episode, apiKey)
	if err != nil {
		data.Error = err.Error()
		return data
	}

	for i, result := range results {
		if result.URL == "" || result.Name == "" {
			continue
		}
		data.Subtitles = append(data.Subtitles, models.SubtitleTrack{
			ID:        strconv.Itoa(i),
			Language:  p.language,
			URL:       result.URL,
			Label:     result.Name,
			Extension: models.SubtitleFormatSRT,
		})
	}

	if p.cache != nil {
		if err := p.cache.SetVideoData(ctx, pageURL, data, p.cacheTTL); err != nil {
			p.logger.WithError(err).Warn("video data cache store failed")
		}
	}

	return data
}

// SearchTracks converts search results into picker tracks prefixed with
// the "no subtitle" track. Results without a url or name are dropped.
func SearchTracks(results []models.SearchResult, empty models.SubtitleTrack, language string) []models.SubtitleTrack {
	tracks := []models.SubtitleTrack{empty}
	for i, result := range results {
		if result.URL == "" || result.Name == "" {
			continue
		}
		tracks = append(tracks, models.SubtitleTrack{
			ID:        "fetched-" + strconv.Itoa(i),
			Language:  language,
			URL:       result.URL,
			Label:     result.Name,
			Extension: models.SubtitleFormatSRT,
		})
	}
	return tracks
}
