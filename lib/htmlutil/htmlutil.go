package htmlutil

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// CleanText normalizes text scraped out of an HTML cell: non-printable
// characters are dropped, surrounding whitespace is trimmed and inner
// runs of whitespace are collapsed to a single space.
func CleanText(s string) string {
	out := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			out.WriteRune(c)
			continue
		}
		if unicode.IsSpace(c) {
			out.WriteRune(' ')
		}
	}
	cleaned := strings.Trim(out.String(), " \t\n")
	return innerWhitespace.ReplaceAllString(cleaned, " ")
}

// SelectionText is CleanText applied to the text content of a selection.
func SelectionText(sel *goquery.Selection) string {
	return CleanText(sel.Text())
}
