package sites

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Page is the state of a video page at one point in time
type Page struct {
	URL *url.URL
	Doc *goquery.Document
}

// NewPage parses html for the page at rawURL
func NewPage(rawURL, html string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	doc.Url = u

	return &Page{URL: u, Doc: doc}, nil
}

// Text returns the trimmed text of the first element matching selector
func (p *Page) Text(selector string) string {
	if p == nil || p.Doc == nil || selector == "" {
		return ""
	}
	return strings.TrimSpace(p.Doc.Find(selector).First().Text())
}

// Query returns a query parameter of the page url
func (p *Page) Query(key string) string {
	if p == nil || p.URL == nil {
		return ""
	}
	return p.URL.Query().Get(key)
}

// PageSource yields the current state of the page being watched. It is polled
// on every detection attempt because pages render asynchronously.
type PageSource interface {
	Page(ctx context.Context, rawURL string) (*Page, error)
}

// HTTPPageSource fetches server-rendered pages directly
type HTTPPageSource struct {
	client    *http.Client
	userAgent string
}

// NewHTTPPageSource creates a page source backed by an HTTP client
func NewHTTPPageSource(timeout time.Duration) *HTTPPageSource {
	return &HTTPPageSource{
		client:    &http.Client{Timeout: timeout},
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) subsync/1.0",
	}
}

// Page fetches and parses rawURL
func (s *HTTPPageSource) Page(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	return &Page{URL: req.URL, Doc: doc}, nil
}

// SnapshotSource serves the latest DOM snapshot pushed by the page layer,
// keyed by page url
type SnapshotSource struct {
	mu    sync.RWMutex
	pages map[string]*Page
}

// NewSnapshotSource creates an empty snapshot source
func NewSnapshotSource() *SnapshotSource {
	return &SnapshotSource{pages: make(map[string]*Page)}
}

// Update replaces the snapshot stored for rawURL
func (s *SnapshotSource) Update(rawURL, html string) error {
	page, err := NewPage(rawURL, html)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pages[rawURL] = page
	s.mu.Unlock()
	return nil
}

// Forget drops the snapshot stored for rawURL
func (s *SnapshotSource) Forget(rawURL string) {
	s.mu.Lock()
	delete(s.pages, rawURL)
	s.mu.Unlock()
}

// Page returns the latest snapshot, or an empty page if none was pushed yet
func (s *SnapshotSource) Page(ctx context.Context, rawURL string) (*Page, error) {
	s.mu.RLock()
	page, ok := s.pages[rawURL]
	s.mu.RUnlock()

	if ok {
		return page, nil
	}
	return NewPage(rawURL, "")
}
