// Package sanitize strips page furniture from harvested HTML and renders the
// surviving content as plain text and Markdown. The renderers are careful to
// keep two distinct separators: block boundaries become blank lines, explicit
// <br> breaks become single newlines. Source pages use a lone <br> as a soft
// separator inside dialogue; merging the two corrupts the output.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// furnitureSelectors matches non-content page elements removed before any
// rendering: navigation, ads, share widgets, comment sections.
var furnitureSelectors = []string{
	"nav",
	"header",
	"footer",
	"aside",
	"form",
	"iframe",
	"[role='navigation']",
	"[role='banner']",
	"[role='complementary']",
	".ad", ".ads", ".advertisement", ".banner",
	".share", ".sns", ".social", ".sharebtn",
	".comments", ".comment-list", "#comments",
	".breadcrumb", ".pager", ".pagination",
	".sidebar", ".widget-ad", ".recommend",
}

var furnitureSelector = strings.Join(furnitureSelectors, ", ")

// blockTags are elements whose boundaries become paragraph breaks.
var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "dl": true, "dt": true, "dd": true,
	"blockquote": true, "pre": true, "table": true, "tr": true,
	"figure": true, "figcaption": true, "hr": true,
}

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	spacesAroundNL = regexp.MustCompile(`[ \t]*\n[ \t]*`)
	wsRun          = regexp.MustCompile(`\s+`)
)

// StripFurniture removes scripts, styles, and the furniture deny-list from a
// selection in place.
func StripFurniture(sel *goquery.Selection) {
	sel.Find("script, style, noscript, template").Remove()
	sel.Find(furnitureSelector).Remove()
}

// Sanitize returns the cleaned inner HTML of the document body: furniture and
// script/style/comment nodes removed, inline event handlers stripped, and
// intra-block whitespace normalized. An empty or unparsable input yields "".
func Sanitize(rawHTML string) string {
	doc, ok := sanitizedDoc(rawHTML)
	if !ok {
		return ""
	}
	out, err := doc.Find("body").Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// ToText renders the sanitized content as plain text: block elements joined
// by blank lines, <br> as a single newline, runs of three or more newlines
// collapsed to two, empty blocks dropped.
func ToText(rawHTML string) string {
	doc, ok := sanitizedDoc(rawHTML)
	if !ok {
		return ""
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		return ""
	}

	var blocks []string
	var cur strings.Builder
	flush := func() {
		s := strings.TrimSpace(cur.String())
		cur.Reset()
		if s == "" {
			return
		}
		s = spacesAroundNL.ReplaceAllString(s, "\n")
		blocks = append(blocks, s)
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			cur.WriteString(n.Data)
		case html.ElementNode:
			switch {
			case n.Data == "br":
				cur.WriteString("\n")
			case blockTags[n.Data]:
				flush()
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
				flush()
			default:
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
			}
		}
	}
	for _, node := range body.Nodes {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	flush()

	out := strings.Join(blocks, "\n\n")
	out = excessNewlines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// sanitizedDoc parses rawHTML and applies the furniture/script/comment pass.
func sanitizedDoc(rawHTML string) (*goquery.Document, bool) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, false
	}
	StripFurniture(doc.Selection)
	for _, node := range doc.Nodes {
		removeComments(node)
	}
	stripEventAttrs(doc)
	normalizeWhitespace(doc)
	return doc, true
}

// removeComments drops comment nodes from the subtree rooted at n.
func removeComments(n *html.Node) {
	c := n.FirstChild
	for c != nil {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			removeComments(c)
		}
		c = next
	}
}

// stripEventAttrs removes inline event handlers and javascript: URLs.
func stripEventAttrs(doc *goquery.Document) {
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			kept := node.Attr[:0]
			for _, a := range node.Attr {
				key := strings.ToLower(a.Key)
				if strings.HasPrefix(key, "on") {
					continue
				}
				if (key == "href" || key == "src") &&
					strings.HasPrefix(strings.TrimSpace(strings.ToLower(a.Val)), "javascript:") {
					continue
				}
				kept = append(kept, a)
			}
			node.Attr = kept
		}
	})
}

// normalizeWhitespace collapses whitespace runs inside text nodes to a single
// space. Preformatted subtrees are left alone; block boundaries are elements,
// so they are unaffected.
func normalizeWhitespace(doc *goquery.Document) {
	for _, node := range doc.Nodes {
		normalizeNode(node, false)
	}
}

func normalizeNode(n *html.Node, inPre bool) {
	if n.Type == html.ElementNode && n.Data == "pre" {
		inPre = true
	}
	if n.Type == html.TextNode && !inPre {
		n.Data = wsRun.ReplaceAllString(n.Data, " ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		normalizeNode(c, inPre)
	}
}
