// Package parse interprets a work's index page and its episode pages into
// typed drafts. All extraction heuristics are ordered probe lists evaluated
// in sequence; a probe either produces a confident value or passes to the
// next one, which keeps each heuristic independently testable.
package parse

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// textProbe inspects a document and returns a value plus confidence.
type textProbe func(doc *goquery.Document) (string, bool)

// firstMatch evaluates probes in order and returns the first confident value.
func firstMatch(doc *goquery.Document, probes []textProbe) (string, bool) {
	for _, p := range probes {
		if v, ok := p(doc); ok {
			return v, true
		}
	}
	return "", false
}

// metaContent probes a meta tag's content attribute.
func metaContent(selector string) textProbe {
	return func(doc *goquery.Document) (string, bool) {
		v, exists := doc.Find(selector).First().Attr("content")
		v = strings.TrimSpace(v)
		return v, exists && v != ""
	}
}

// selectorText probes the trimmed text of the first match for selector.
func selectorText(selector string) textProbe {
	return func(doc *goquery.Document) (string, bool) {
		v := strings.TrimSpace(doc.Find(selector).First().Text())
		return v, v != ""
	}
}
