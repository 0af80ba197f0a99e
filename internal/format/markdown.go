// Package format post-processes language model output for display.
package format

import (
	"regexp"
	"strings"
)

var (
	boldToken   = regexp.MustCompile(`(\*\*[^*]+\*\*)`)
	extraBreaks = regexp.MustCompile(`\n{3,}`)
)

// Markdown puts every **bold** token on its own line, collapses runs of three
// or more newlines to a single blank line and trims surrounding whitespace.
func Markdown(s string) string {
	s = boldToken.ReplaceAllString(s, "\n$1\n")
	s = extraBreaks.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
