package sites

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/subsync/internal/tracing"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

const (
	DefaultMaxRetries = 10
	DefaultRetryDelay = time.Second
)

// ErrDetectionTimeout is returned when a supported page never yielded a
// title and episode within the retry budget
var ErrDetectionTimeout = errors.New("could not identify anime title and episode")

// UnsupportedSiteError is returned for pages with no registered strategy
type UnsupportedSiteError struct {
	Site      string
	Supported []string
}

func (e *UnsupportedSiteError) Error() string {
	return fmt.Sprintf("unsupported website %q", e.Site)
}

// Cache stores successful detections keyed by page url
type Cache interface {
	GetSiteInfo(ctx context.Context, pageURL string) (*models.SiteInfo, error)
	SetSiteInfo(ctx context.Context, pageURL string, info *models.SiteInfo, ttl time.Duration) error
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default cancellable delay
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Resolver polls a page until its strategy yields a title and episode
type Resolver struct {
	catalog    *Catalog
	pages      PageSource
	logger     *logging.Logger
	maxRetries int
	delay      time.Duration
	sleep      SleepFunc
	cache      Cache
	cacheTTL   time.Duration
}

// Option configures a Resolver
type Option func(*Resolver)

// WithRetries overrides the retry budget and delay
func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(r *Resolver) {
		r.maxRetries = maxRetries
		r.delay = delay
	}
}

// WithSleep overrides the delay primitive
func WithSleep(sleep SleepFunc) Option {
	return func(r *Resolver) {
		r.sleep = sleep
	}
}

// WithCache stores successful detections in cache for ttl
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = cache
		r.cacheTTL = ttl
	}
}

// NewResolver creates a resolver over catalog and pages
func NewResolver(catalog *Catalog, pages PageSource, logger *logging.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:    catalog,
		pages:      pages,
		logger:     logger,
		maxRetries: DefaultMaxRetries,
		delay:      DefaultRetryDelay,
		sleep:      Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsSupported reports whether rawURL belongs to a registered site
func (r *Resolver) IsSupported(rawURL string) bool {
	return r.catalog.Supports(rawURL)
}

// Resolve extracts the title and episode for rawURL. Unsupported sites fail
// immediately; supported ones are polled up to maxRetries extra times.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*models.SiteInfo, error) {
	span, ctx := tracing.StartSpan(ctx, "sites.resolve")
	defer tracing.FinishSpan(span)

	site, err := NormalizeHost(rawURL)
	if err != nil {
		tracing.LogError(span, err)
		return nil, err
	}
	tracing.SetTag(span, "site", site)

	strategy, ok := r.catalog.Lookup(site)
	if !ok {
		metrics.RecordDetection(site, "unsupported", 0)
		return nil, &UnsupportedSiteError{Site: site, Supported: r.catalog.Hosts()}
	}

	if r.cache != nil {
		if info, err := r.cache.GetSiteInfo(ctx, rawURL); err != nil {
			r.logger.WithError(err).Warn("site cache lookup failed")
		} else if info != nil {
			return info, nil
		}
	}

	for attempt := 0; ; attempt++ {
		if info, ok := r.attempt(ctx, rawURL, strategy); ok {
			r.logger.LogDetectionAttempt(site, attempt, true)
			metrics.RecordDetection(site, "found", attempt)
			r.store(ctx, rawURL, info)
			return info, nil
		}
		r.logger.LogDetectionAttempt(site, attempt, false)

		if attempt >= r.maxRetries {
			break
		}
		if err := r.sleep(ctx, r.delay); err != nil {
			return nil, fmt.Errorf("site detection cancelled: %w", err)
		}
	}

	metrics.RecordDetection(site, "timeout", r.maxRetries)
	tracing.LogError(span, ErrDetectionTimeout)
	return nil, ErrDetectionTimeout
}

func (r *Resolver) attempt(ctx context.Context, rawURL string, strategy Strategy) (*models.SiteInfo, bool) {
	page, err := r.pages.Page(ctx, rawURL)
	if err != nil {
		r.logger.WithError(err).Debug("page not available")
		return nil, false
	}

	ext := strategy.Extract(page)
	title := strings.TrimSpace(ext.Title)
	episode, ok := ParseEpisode(ext.Episode)
	if title == "" || !ok {
		return nil, false
	}

	return &models.SiteInfo{
		Title:      title,
		Episode:    episode,
		ExternalID: ext.ExternalID,
	}, true
}

func (r *Resolver) store(ctx context.Context, rawURL string, info *models.SiteInfo) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SetSiteInfo(ctx, rawURL, info, r.cacheTTL); err != nil {
		r.logger.WithError(err).Warn("site cache store failed")
	}
}

var leadingInt = regexp.MustCompile(`^[+-]?\d+`)

// ParseEpisode parses the leading integer of s. "0" is a valid episode.
func ParseEpisode(s string) (int, bool) {
	digits := leadingInt.FindString(strings.TrimSpace(s))
	if digits == "" {
		return 0, false
	}
	episode, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return episode, true
}
