package models

// SiteInfo is the title and episode detected on a supported video page
type SiteInfo struct {
	Title      string `json:"title"`
	Episode    int    `json:"episode"`
	ExternalID int    `json:"externalId,omitempty"`
}

// SearchResult is one subtitle returned by the remote search service
type SearchResult struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}
