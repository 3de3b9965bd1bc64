package sites

import (
	"regexp"
	"strconv"
)

// StremioEpisodePattern matches the "(SxE)" suffix of Stremio page titles
var StremioEpisodePattern = regexp.MustCompile(`(\d+)x(\d+)`)

// SelectorStrategy reads title and episode from two CSS selectors
type SelectorStrategy struct {
	TitleSelector   string
	EpisodeSelector string
}

// Extract implements Strategy
func (s SelectorStrategy) Extract(page *Page) Extraction {
	return Extraction{
		Title:   page.Text(s.TitleSelector),
		Episode: page.Text(s.EpisodeSelector),
	}
}

// QueryParamStrategy reads the title from a selector and the episode (and
// optionally the external id) from the page url query
type QueryParamStrategy struct {
	TitleSelector string
	EpisodeParam  string
	IDParam       string
}

// Extract implements Strategy
func (s QueryParamStrategy) Extract(page *Page) Extraction {
	ext := Extraction{
		Title:   page.Text(s.TitleSelector),
		Episode: page.Query(s.EpisodeParam),
	}

	if s.IDParam != "" {
		if id, err := strconv.Atoi(page.Query(s.IDParam)); err == nil {
			ext.ExternalID = id
		}
	}

	return ext
}

// TitlePatternStrategy reads the title from a selector and the episode from a
// regex group applied to the document <title>
type TitlePatternStrategy struct {
	TitleSelector string
	Pattern       *regexp.Regexp
	EpisodeGroup  int
}

// Extract implements Strategy
func (s TitlePatternStrategy) Extract(page *Page) Extraction {
	ext := Extraction{Title: page.Text(s.TitleSelector)}

	match := s.Pattern.FindStringSubmatch(page.Text("title"))
	if len(match) > s.EpisodeGroup {
		ext.Episode = match[s.EpisodeGroup]
	}

	return ext
}

// StrategyFunc adapts a plain function to Strategy
type StrategyFunc func(page *Page) Extraction

// Extract implements Strategy
func (f StrategyFunc) Extract(page *Page) Extraction {
	return f(page)
}
