package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/subsync/internal/config"
	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/subsync/internal/tracing"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
	"golang.org/x/time/rate"
)

// ErrExternalIDNotFound is returned when no Anilist entry matches a title
var ErrExternalIDNotFound = errors.New("unable to find Anilist ID for the given title")

// ServiceError is an error message returned by a remote service
type ServiceError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return e.Message
}

const anilistQuery = `query ($search: String) {
  Media(search: $search, type: ANIME) {
    id
  }
}`

// Client queries Anilist for ids and the subtitle service for files
type Client struct {
	httpClient        *http.Client
	limiter           *rate.Limiter
	anilistEndpoint   string
	subtitlesEndpoint string
	logger            *logging.Logger
}

// NewClient creates a search client from configuration
func NewClient(cfg config.SearchConfig, logger *logging.Logger) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	return &Client{
		httpClient:        &http.Client{Timeout: cfg.Timeout},
		limiter:           rate.NewLimiter(rate.Limit(rps), rps),
		anilistEndpoint:   cfg.AnilistEndpoint,
		subtitlesEndpoint: strings.TrimSuffix(cfg.SubtitlesEndpoint, "/"),
		logger:            logger,
	}
}

type anilistResponse struct {
	Data struct {
		Media *struct {
			ID int `json:"id"`
		} `json:"Media"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// ResolveExternalID returns the Anilist id for title
func (c *Client) ResolveExternalID(ctx context.Context, title string) (int, error) {
	span, ctx := tracing.StartSpan(ctx, "search.resolve_external_id")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "title", title)

	body, err := json.Marshal(map[string]interface{}{
		"query":     anilistQuery,
		"variables": map[string]string{"search": title},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.anilistEndpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var result anilistResponse
	status, err := c.do(req, "anilist", &result)
	if err != nil {
		tracing.LogError(span, err)
		// Anilist answers 404 when nothing matches
		if status != http.StatusNotFound {
			return 0, err
		}
	}

	if result.Data.Media == nil || result.Data.Media.ID == 0 {
		metrics.RecordSearch("anilist", "not_found")
		return 0, ErrExternalIDNotFound
	}

	metrics.RecordSearch("anilist", "success")
	return result.Data.Media.ID, nil
}

type subtitleEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// SearchSubtitles lists subtitle files for an Anilist id and episode
func (c *Client) SearchSubtitles(ctx context.Context, externalID, episode int, apiKey string) ([]models.SearchResult, error) {
	span, ctx := tracing.StartSpan(ctx, "search.subtitles")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "external_id", externalID)
	tracing.SetTag(span, "episode", episode)

	query := url.Values{"anilist_id": {strconv.Itoa(externalID)}}
	req, err := c.subtitleRequest(ctx, "/entries/search?"+query.Encode(), apiKey)
	if err != nil {
		return nil, err
	}

	var entries []subtitleEntry
	if _, err := c.do(req, "subtitles", &entries); err != nil {
		tracing.LogError(span, err)
		return nil, err
	}
	if len(entries) == 0 {
		metrics.RecordSearch("subtitles", "not_found")
		return []models.SearchResult{}, nil
	}

	query = url.Values{"episode": {strconv.Itoa(episode)}}
	req, err = c.subtitleRequest(ctx, fmt.Sprintf("/entries/%d/files?%s", entries[0].ID, query.Encode()), apiKey)
	if err != nil {
		return nil, err
	}

	var files []models.SearchResult
	if _, err := c.do(req, "subtitles", &files); err != nil {
		tracing.LogError(span, err)
		return nil, err
	}

	metrics.RecordSearch("subtitles", "success")
	c.logger.WithFields(map[string]interface{}{
		"external_id": externalID,
		"episode":     episode,
		"results":     len(files),
	}).Debug("subtitle search finished")

	return files, nil
}

func (c *Client) subtitleRequest(ctx context.Context, path, apiKey string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.subtitlesEndpoint+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", apiKey)
	}
	return req, nil
}

// do waits for the rate limiter, sends req and decodes a JSON body into out
func (c *Client) do(req *http.Request, service string, out interface{}) (int, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordSearch(service, "error")
		return 0, fmt.Errorf("failed to reach %s: %w", service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordSearch(service, "error")
		return resp.StatusCode, fmt.Errorf("failed to read %s response: %w", service, err)
	}

	c.logger.WithFields(map[string]interface{}{
		"service":     service,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("search request finished")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordSearch(service, "http_error")
		return resp.StatusCode, serviceError(service, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		metrics.RecordSearch(service, "error")
		return resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", service, err)
	}
	return resp.StatusCode, nil
}

func serviceError(service string, status int, body []byte) *ServiceError {
	var payload struct {
		Error string `json:"error"`
	}
	message := fmt.Sprintf("%s returned status %d", service, status)
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		message = payload.Error
	}
	return &ServiceError{Service: service, StatusCode: status, Message: message}
}
