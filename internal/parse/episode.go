package parse

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/tanukirift/novelpress/internal/sanitize"
)

// episodeTitleSelectors resolve the episode title, site-specific first.
var episodeTitleSelectors = []string{
	".widget-episodeTitle",
	".episode-title",
	".chapter-title",
	"p.widget-episodeTitle",
}

// episodeBodySelectors resolve the article body, most specific semantic
// container first, generic landmarks last.
var episodeBodySelectors = []string{
	".widget-episodeBody",
	".episode-body",
	"#episode-content",
	".chapter-content",
	"article",
	"[role='main']",
	"main",
}

// EpisodeDraft is the typed result of parsing one episode page. Zero
// timestamps mean the page carried none.
type EpisodeDraft struct {
	Title       string
	BodyHTML    string
	PublishedAt time.Time
	UpdatedAt   time.Time
}

// ParseEpisode interprets an episode page into its title, body HTML, and
// timestamps. The body is extracted from a detached copy so the furniture
// strip never mutates shared parse state.
func (p *Parser) ParseEpisode(rawHTML string) (*EpisodeDraft, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse episode document: %w", err)
	}

	draft := &EpisodeDraft{
		Title:    p.resolveEpisodeTitle(doc),
		BodyHTML: p.resolveEpisodeBody(doc),
	}
	draft.PublishedAt, draft.UpdatedAt = resolveTimestamps(doc)
	return draft, nil
}

func (p *Parser) resolveEpisodeTitle(doc *goquery.Document) string {
	probes := make([]textProbe, 0, len(episodeTitleSelectors)+3)
	for _, sel := range episodeTitleSelectors {
		probes = append(probes, selectorText(sel))
	}
	probes = append(probes,
		metaContent("meta[property='og:title']"),
		selectorText("h1"),
		selectorText("title"),
	)
	if title, ok := firstMatch(doc, probes); ok {
		return title
	}
	p.logger.Warn("no title found on episode page, using fallback")
	return "Untitled"
}

func (p *Parser) resolveEpisodeBody(doc *goquery.Document) string {
	for _, sel := range episodeBodySelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		detached := s.Clone()
		sanitize.StripFurniture(detached)
		if strings.TrimSpace(detached.Text()) == "" {
			continue
		}
		if h, err := detached.Html(); err == nil {
			return h
		}
	}
	p.logger.Warn("no body container matched on episode page")
	return ""
}

// resolveTimestamps reads published/updated from article metadata or, failing
// that, from the first and second time elements on the page.
func resolveTimestamps(doc *goquery.Document) (published, updated time.Time) {
	published = parseMetaTime(doc, "meta[property='article:published_time']")
	updated = parseMetaTime(doc, "meta[property='article:modified_time']")
	if !published.IsZero() || !updated.IsZero() {
		return published, updated
	}

	times := doc.Find("time[datetime]")
	if v, ok := times.Eq(0).Attr("datetime"); ok {
		published = parseTimeLoose(v)
	}
	if v, ok := times.Eq(1).Attr("datetime"); ok {
		updated = parseTimeLoose(v)
	}
	return published, updated
}

func parseMetaTime(doc *goquery.Document, selector string) time.Time {
	v, ok := doc.Find(selector).First().Attr("content")
	if !ok {
		return time.Time{}
	}
	return parseTimeLoose(v)
}

// parseTimeLoose accepts the timestamp shapes seen in the wild on episode
// pages.
func parseTimeLoose(v string) time.Time {
	v = strings.TrimSpace(v)
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
