package loader

import (
	"regexp"
	"strings"
)

// Allow-list normalization: collapse runs of whitespace, strip
// characters outside Unicode letters/digits/basic punctuation,
// collapse repeated newlines, trim.
var (
	spaceRe   = regexp.MustCompile(`[ \t\r\f\v]+`)
	allowRe   = regexp.MustCompile(`[^\p{L}\p{N}_ \n.,!?;:()\-'"]+`)
	newlineRe = regexp.MustCompile(`\n+`)
)

// Normalize cleans raw extracted text for chunking and embedding.
// Returns an empty string when nothing survives.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	text = spaceRe.ReplaceAllString(text, " ")
	text = allowRe.ReplaceAllString(text, "")
	text = newlineRe.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}
