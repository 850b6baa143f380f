package parse

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	xhtml "golang.org/x/net/html"
)

// uncategorizedLabel groups episodes that have no preceding chapter heading.
const uncategorizedLabel = "uncategorized"

// minSynopsisLen rejects short taglines masquerading as a synopsis.
const minSynopsisLen = 80

var (
	workPathRe = regexp.MustCompile(`/works/([0-9A-Za-z_-]+)`)

	// chapterMarkerRe recognizes headings that introduce a volume or story
	// arc on the index page.
	chapterMarkerRe = regexp.MustCompile(
		`(?i)(第\s*[0-9０-９一二三四五六七八九十]+\s*[章巻部編集]|chapter|volume|vol\.?\s*[0-9]|book|part|arc)`)

	// synopsisHeadingRe recognizes headings that introduce the work summary.
	synopsisHeadingRe = regexp.MustCompile(`(?i)(あらすじ|紹介|作品紹介|synopsis|overview|summary|introduction)`)

	arabicNumberRe = regexp.MustCompile(`[0-9]+`)
	kanjiNumberRe  = regexp.MustCompile(`[一二三四五六七八九十]+`)

	fullWidthDigits = strings.NewReplacer(
		"０", "0", "１", "1", "２", "2", "３", "3", "４", "4",
		"５", "5", "６", "6", "７", "7", "８", "8", "９", "9",
	)
)

// introSelectors locate the work introduction container, most specific first.
var introSelectors = []string{
	"#introduction",
	".widget-introduction",
	".work-introduction",
	"#workIntroduction",
	".p-work-introduction",
	"#synopsis",
	".summary-content",
}

// IdentityError reports that no stable work identifier could be derived from
// a URL. It is fatal for the harvest of that work.
type IdentityError struct {
	URL string
}

// Error implements the error interface.
func (e *IdentityError) Error() string {
	return fmt.Sprintf("no work identifier in URL %s", e.URL)
}

// EpisodeLink is one table-of-contents entry discovered on the index page.
type EpisodeLink struct {
	EpisodeID string
	URL       string
	Title     string
	Premium   bool
}

// VolumeDraft groups the episodes under one chapter heading.
type VolumeDraft struct {
	Number   int
	Title    string
	Episodes []EpisodeLink
}

// IndexDraft is the typed result of parsing a work's index page.
type IndexDraft struct {
	WorkID       string
	Title        string
	SynopsisHTML string
	Volumes      []VolumeDraft
}

// Parser interprets index and episode documents. Heuristic fallbacks are
// logged as quality signals, never surfaced as errors.
type Parser struct {
	logger *zap.Logger
}

// NewParser builds a Parser. A nil logger is replaced with a no-op logger.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// WorkIDFromURL derives the stable work identifier from a work URL path.
func WorkIDFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &IdentityError{URL: rawURL}
	}
	m := workPathRe.FindStringSubmatch(u.Path)
	if m == nil {
		return "", &IdentityError{URL: rawURL}
	}
	return m[1], nil
}

// ParseIndex interprets a work's index page: identity, title, synopsis, and
// the table of contents grouped into volumes.
func (p *Parser) ParseIndex(rawHTML, workURL string) (*IndexDraft, error) {
	workID, err := WorkIDFromURL(workURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse index document: %w", err)
	}

	draft := &IndexDraft{
		WorkID:       workID,
		Title:        p.resolveTitle(doc, workURL),
		SynopsisHTML: p.resolveSynopsis(doc, workURL),
	}
	draft.Volumes = p.resolveVolumes(doc, workID, workURL)
	return draft, nil
}

func (p *Parser) resolveTitle(doc *goquery.Document, workURL string) string {
	title, ok := firstMatch(doc, []textProbe{
		metaContent("meta[property='og:title']"),
		metaContent("meta[name='twitter:title']"),
		selectorText("h1"),
		selectorText("title"),
	})
	if !ok {
		p.logger.Warn("no title found on index page, using fallback",
			zap.String("url", workURL))
		return "Unknown Title"
	}
	return title
}

// resolveSynopsis walks three candidate sources in priority order. Container
// and heading candidates must carry at least minSynopsisLen characters of
// text; the meta description last resort is accepted at any length.
func (p *Parser) resolveSynopsis(doc *goquery.Document, workURL string) string {
	for _, sel := range introSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if len([]rune(strings.TrimSpace(s.Text()))) < minSynopsisLen {
			continue
		}
		if h, err := s.Html(); err == nil {
			return h
		}
	}

	if h := p.synopsisFromHeading(doc); h != "" {
		return h
	}

	if desc, ok := firstMatch(doc, []textProbe{
		metaContent("meta[property='og:description']"),
		metaContent("meta[name='description']"),
	}); ok {
		p.logger.Info("synopsis fell back to meta description",
			zap.String("url", workURL))
		return "<p>" + xhtml.EscapeString(desc) + "</p>"
	}

	p.logger.Warn("no synopsis found on index page", zap.String("url", workURL))
	return ""
}

// synopsisFromHeading finds a heading whose text looks like a synopsis
// marker and accumulates sibling content until the next heading of
// equal-or-higher level.
func (p *Parser) synopsisFromHeading(doc *goquery.Document) string {
	var result string
	doc.Find("h1, h2, h3, h4, h5, h6").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if !synopsisHeadingRe.MatchString(h.Text()) {
			return true
		}
		level := headingLevel(goquery.NodeName(h))

		var html, text strings.Builder
		for _, node := range h.Nodes {
			for sib := node.NextSibling; sib != nil; sib = sib.NextSibling {
				if sib.Type == xhtml.ElementNode {
					if l := headingLevel(sib.Data); l > 0 && l <= level {
						break
					}
				}
				html.WriteString(renderNode(sib))
				text.WriteString(nodeText(sib))
			}
		}
		if len([]rune(strings.TrimSpace(text.String()))) >= minSynopsisLen {
			result = html.String()
			return false
		}
		return true
	})
	return result
}

// tocGroup accumulates the episodes found under one chapter heading.
type tocGroup struct {
	label    string
	firstID  string
	episodes []EpisodeLink
}

// hasMixedWidthIDs reports whether the group ordering compare saw episode
// identifiers of different lengths, the precondition for lexicographic
// misordering.
func hasMixedWidthIDs(groups []*tocGroup) bool {
	if len(groups) < 2 {
		return false
	}
	width := len(groups[0].firstID)
	for _, g := range groups[1:] {
		if len(g.firstID) != width {
			return true
		}
	}
	return false
}

// resolveVolumes discovers the table of contents and groups episodes under
// their nearest preceding chapter heading.
func (p *Parser) resolveVolumes(doc *goquery.Document, workID, workURL string) []VolumeDraft {
	episodeRe := regexp.MustCompile(
		`/works/` + regexp.QuoteMeta(workID) + `/episodes/([0-9A-Za-z_-]+)/?$`)
	base, _ := url.Parse(workURL)

	var groups []*tocGroup
	byLabel := make(map[string]*tocGroup)
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := episodeRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		epID := m[1]
		// Pages may render the same link twice (mobile/desktop layouts);
		// the first occurrence wins.
		if seen[epID] {
			return
		}
		seen[epID] = true

		link := EpisodeLink{
			EpisodeID: epID,
			URL:       resolveHref(base, href),
			Title:     strings.TrimSpace(a.Text()),
			Premium:   isPremiumLink(a),
		}

		label := uncategorizedLabel
		if len(a.Nodes) > 0 {
			if h := nearestChapterHeading(a.Nodes[0]); h != "" {
				label = h
			}
		}

		g, ok := byLabel[label]
		if !ok {
			g = &tocGroup{label: label, firstID: epID}
			byLabel[label] = g
			groups = append(groups, g)
		}
		g.episodes = append(g.episodes, link)
	})

	// Groups are ordered by the identifier of their first episode. The
	// compare is lexicographic on the raw identifier string, so mixed-width
	// identifiers can misorder; that matches the source site's behavior and
	// is only reported, not corrected.
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].firstID < groups[j].firstID
	})
	if hasMixedWidthIDs(groups) {
		p.logger.Warn("episode identifiers have mixed widths; group order may not match the page",
			zap.String("url", workURL))
	}

	volumes := make([]VolumeDraft, 0, len(groups))
	for i, g := range groups {
		number, ok := parseVolumeNumber(g.label)
		if !ok {
			number = i + 1
			if g.label != uncategorizedLabel {
				p.logger.Info("no numeral in volume heading, using position",
					zap.String("heading", g.label),
					zap.Int("number", number))
			}
		}
		volumes = append(volumes, VolumeDraft{
			Number:   number,
			Title:    g.label,
			Episodes: g.episodes,
		})
	}
	return volumes
}

// parseVolumeNumber extracts a volume number from a heading, trying Arabic
// digits first and the bounded kanji decoder second.
func parseVolumeNumber(heading string) (int, bool) {
	normalized := fullWidthDigits.Replace(heading)
	if m := arabicNumberRe.FindString(normalized); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n > 0 {
			return n, true
		}
	}
	if m := kanjiNumberRe.FindString(heading); m != "" {
		if n, ok := KanjiNumber(m); ok {
			return n, true
		}
	}
	return 0, false
}

// nearestChapterHeading walks backward through preceding siblings and then up
// through ancestors looking for a heading that matches the chapter marker
// pattern.
func nearestChapterHeading(n *xhtml.Node) string {
	for cur := n; cur != nil; cur = cur.Parent {
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if h := lastChapterHeadingIn(sib); h != "" {
				return h
			}
		}
	}
	return ""
}

// lastChapterHeadingIn returns the text of the last matching chapter heading
// inside the subtree rooted at n, or "".
func lastChapterHeadingIn(n *xhtml.Node) string {
	if n.Type == xhtml.ElementNode && headingLevel(n.Data) > 0 {
		text := strings.TrimSpace(nodeText(n))
		if chapterMarkerRe.MatchString(text) {
			return text
		}
		return ""
	}
	var found string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if h := lastChapterHeadingIn(c); h != "" {
			found = h
		}
	}
	return found
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// isPremiumLink checks the anchor and its list-item ancestor for premium
// gating hints.
func isPremiumLink(a *goquery.Selection) bool {
	if a.HasClass("premium") || a.Find(".premium, .lock, .paid").Length() > 0 {
		return true
	}
	li := a.Closest("li")
	if li.Length() > 0 && li.HasClass("premium") {
		return true
	}
	if v, ok := a.Attr("data-premium"); ok && v != "false" && v != "" {
		return true
	}
	return false
}

func resolveHref(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// renderNode serializes a node back to HTML.
func renderNode(n *xhtml.Node) string {
	var b strings.Builder
	if err := xhtml.Render(&b, n); err != nil {
		return ""
	}
	return b.String()
}

// nodeText concatenates the text content of a subtree.
func nodeText(n *xhtml.Node) string {
	if n.Type == xhtml.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}
