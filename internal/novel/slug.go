package novel

import (
	"fmt"
	"strings"
	"unicode"
)

// Slugify lowercases a title and reduces it to hyphen-separated ASCII
// alphanumerics. Titles with no ASCII content (common for Japanese works)
// yield an empty string; callers fall back to the work identifier.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || unicode.IsDigit(r) && r < 128:
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// Slugger hands out slugs that are unique within one run by suffixing
// -2, -3, ... on collision.
type Slugger struct {
	seen map[string]int
}

// NewSlugger returns an empty Slugger.
func NewSlugger() *Slugger {
	return &Slugger{seen: make(map[string]int)}
}

// Unique returns slug itself on first use and a numbered variant afterwards.
func (s *Slugger) Unique(slug string) string {
	n := s.seen[slug]
	s.seen[slug] = n + 1
	if n == 0 {
		return slug
	}
	return fmt.Sprintf("%s-%d", slug, n+1)
}
