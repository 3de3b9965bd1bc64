package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/subsync/internal/tracing"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// TrackRequest describes one logical track to retrieve
type TrackRequest struct {
	Name      string
	Language  string
	Extension string
	URL       string
	LocalFile bool
}

// LazyResolver asks the page layer for on-demand track data for a language
type LazyResolver interface {
	RequestLanguageData(ctx context.Context, language string) (*models.VideoData, error)
}

// Progress receives manifest retrieval progress
type Progress interface {
	Progress(ctx context.Context, name string, percent int)
}

// ProgressFunc adapts a function to Progress
type ProgressFunc func(ctx context.Context, name string, percent int)

// Progress implements Progress
func (f ProgressFunc) Progress(ctx context.Context, name string, percent int) {
	f(ctx, name, percent)
}

// ProgressMessage formats a progress notification
func ProgressMessage(name string, percent int) string {
	return fmt.Sprintf("%s (%d%%)", name, percent)
}

// Retriever turns track requests into subtitle payloads
type Retriever struct {
	client   *http.Client
	files    *LocalFiles
	lazy     LazyResolver
	progress Progress
	logger   *logging.Logger
}

// Option configures a Retriever
type Option func(*Retriever)

// WithHTTPClient replaces the client used for fetches
func WithHTTPClient(client *http.Client) Option {
	return func(r *Retriever) {
		r.client = client
	}
}

// WithLazyResolver sets the page layer used for on-demand tracks
func WithLazyResolver(lazy LazyResolver) Option {
	return func(r *Retriever) {
		r.lazy = lazy
	}
}

// WithProgress sets the manifest progress sink
func WithProgress(progress Progress) Option {
	return func(r *Retriever) {
		r.progress = progress
	}
}

// New creates a retriever. Local files registered in files are reachable
// through their blob urls.
func New(files *LocalFiles, logger *logging.Logger, opts ...Option) *Retriever {
	if files == nil {
		files = NewLocalFiles("null")
	}

	r := &Retriever{
		client: files.Client(),
		files:  files,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LocalFiles returns the registry serving blob urls
func (r *Retriever) LocalFiles() *LocalFiles {
	return r.files
}

// Retrieve resolves one track into zero or more files. A nil slice with a
// nil error means the track yielded nothing.
func (r *Retriever) Retrieve(ctx context.Context, req TrackRequest) ([]models.SubtitleFile, error) {
	span, ctx := tracing.StartSpan(ctx, "retriever.retrieve")
	defer tracing.FinishSpan(span)

	kind := kindOf(req)
	tracing.SetTag(span, "kind", kind)
	tracing.SetTag(span, "track.name", req.Name)

	start := time.Now()
	files, err := r.retrieve(ctx, req)

	status := "success"
	if err != nil {
		status = statusOf(err)
		tracing.LogError(span, err)
	}
	metrics.RecordTrackRetrieval(kind, status, time.Since(start).Seconds(), payloadSize(files))

	return files, err
}

func (r *Retriever) retrieve(ctx context.Context, req TrackRequest) ([]models.SubtitleFile, error) {
	switch req.URL {
	case models.EmptyTrackID:
		return []models.SubtitleFile{{
			Name:    req.Name + "." + req.Extension,
			Payload: []byte{},
		}}, nil

	case models.LazyURL:
		resolved, err := r.resolveLazy(ctx, req.Language)
		if err != nil {
			return nil, err
		}
		req.URL = resolved
	}

	resp, err := r.fetch(ctx, req.URL, req.LocalFile)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	if !ok(resp) {
		return nil, httpError(req.URL, resp)
	}

	if req.Extension == models.SubtitleFormatM3U8 {
		return r.retrieveManifest(ctx, req, resp.Body)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}

	return []models.SubtitleFile{{
		Name:    req.Name + "." + req.Extension,
		Payload: payload,
	}}, nil
}

func (r *Retriever) resolveLazy(ctx context.Context, language string) (string, error) {
	if language == "" {
		return "", ErrLanguageUndetermined
	}
	if r.lazy == nil {
		return "", &LazyResolutionError{Language: language, Message: "on-demand tracks are not available"}
	}

	data, err := r.lazy.RequestLanguageData(ctx, language)
	if err != nil {
		return "", &LazyResolutionError{Language: language, Message: err.Error()}
	}
	if data.Error != "" {
		return "", &LazyResolutionError{Language: language, Message: data.Error}
	}

	track, found := data.TrackForLanguage(language)
	if !found {
		return "", ErrLanguageNotFound
	}
	return track.URL, nil
}

// fetch issues a GET; local file handles are released afterwards whatever
// the outcome
func (r *Retriever) fetch(ctx context.Context, rawURL string, localFile bool) (*http.Response, error) {
	if localFile {
		defer r.files.Revoke(rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return r.client.Do(req)
}

func ok(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func httpError(rawURL string, resp *http.Response) *HTTPError {
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		URL:        rawURL,
	}
}

func kindOf(req TrackRequest) string {
	switch {
	case req.URL == models.EmptyTrackID:
		return "empty"
	case req.URL == models.LazyURL:
		return "lazy"
	case req.Extension == models.SubtitleFormatM3U8:
		return "manifest"
	default:
		return "direct"
	}
}

func statusOf(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return "http_error"
	}
	if Skippable(err) {
		return SkipReason(err)
	}
	return "error"
}

func payloadSize(files []models.SubtitleFile) int {
	total := 0
	for _, f := range files {
		total += len(f.Payload)
	}
	return total
}
