package sites

import (
	"fmt"
	"net/url"
	"strings"
)

// Extraction is the raw title and episode text read from a page
type Extraction struct {
	Title      string
	Episode    string
	ExternalID int
}

// Strategy reads title and episode from the current page state
type Strategy interface {
	Extract(page *Page) Extraction
}

// Catalog maps normalized hostnames to extraction strategies
type Catalog struct {
	hosts      []string
	strategies map[string]Strategy
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{strategies: make(map[string]Strategy)}
}

// Register adds a strategy for host. Hosts keep their registration order.
func (c *Catalog) Register(host string, strategy Strategy) {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if _, exists := c.strategies[host]; !exists {
		c.hosts = append(c.hosts, host)
	}
	c.strategies[host] = strategy
}

// Lookup returns the strategy registered for host
func (c *Catalog) Lookup(host string) (Strategy, bool) {
	strategy, ok := c.strategies[host]
	return strategy, ok
}

// Hosts returns every registered hostname
func (c *Catalog) Hosts() []string {
	hosts := make([]string, len(c.hosts))
	copy(hosts, c.hosts)
	return hosts
}

// Supports reports whether rawURL belongs to a registered site
func (c *Catalog) Supports(rawURL string) bool {
	host, err := NormalizeHost(rawURL)
	if err != nil {
		return false
	}
	_, ok := c.strategies[host]
	return ok
}

// NormalizeHost returns the lowercase hostname of rawURL without a leading "www."
func NormalizeHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid page url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid page url %q: missing host", rawURL)
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www."), nil
}

// DefaultCatalog returns the catalog of built-in anime sites
func DefaultCatalog() *Catalog {
	c := NewCatalog()

	c.Register("hianime.to", SelectorStrategy{
		TitleSelector:   "h2.film-name > a",
		EpisodeSelector: ".ssl-item.ep-item.active",
	})

	c.Register("miruro.tv", QueryParamStrategy{
		TitleSelector: ".anime-title > a",
		EpisodeParam:  "ep",
		IDParam:       "id",
	})

	c.Register("app.strem.io", TitlePatternStrategy{
		TitleSelector: ".fallback.ng-binding",
		Pattern:       StremioEpisodePattern,
		EpisodeGroup:  2,
	})

	return c
}
