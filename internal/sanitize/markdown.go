package sanitize

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

var (
	hardBreak = regexp.MustCompile(`[ \t]+\n`)
	brTag     = regexp.MustCompile(`(?i)<br\s*/?>`)
)

// brToken stands in for explicit line breaks during conversion so they come
// out as single newlines no matter how the converter renders <br>.
const brToken = ""

// ToMarkdown renders the sanitized content as Markdown. Block elements are
// separated by blank lines, explicit line breaks become single newlines, runs
// of three or more newlines collapse to two, and trailing whitespace is
// trimmed per line. Empty or unparsable input yields "".
func ToMarkdown(rawHTML string) string {
	cleaned := Sanitize(rawHTML)
	if cleaned == "" {
		return ""
	}
	cleaned = brTag.ReplaceAllString(cleaned, brToken)

	conv := md.NewConverter("", true, nil)
	out, err := conv.ConvertString(cleaned)
	if err != nil {
		return ""
	}
	out = strings.ReplaceAll(out, brToken, "\n")
	out = hardBreak.ReplaceAllString(out, "\n")
	out = excessNewlines.ReplaceAllString(out, "\n\n")

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
