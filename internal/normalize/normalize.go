// Package normalize turns raw knowledge-base records into indexable documents.
//
// Every source kind composes its fields into one text block, then runs it
// through the same cleaning pipeline. Records whose text is empty after
// cleaning are dropped, so index rows never point at blank documents.
package normalize

import (
	"regexp"
	"strings"
)

var (
	markupPattern  = regexp.MustCompile(`<[^>]+>`)
	nonWordPattern = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// CleanText strips markup tags and punctuation, then collapses every
// whitespace run into a single space. Returns "" when nothing survives.
func CleanText(text string) string {
	text = markupPattern.ReplaceAllString(text, " ")
	text = nonWordPattern.ReplaceAllString(text, " ")
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
