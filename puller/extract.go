package puller

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// nonTextSelectors are dropped before taking document text.
const nonTextSelectors = "script, style, noscript, template"

var tagPattern = regexp.MustCompile(`(?s)<[^>]*>`)

// ExtractText strips markup from an HTML page or fragment and collapses
// whitespace. It never fails: input the HTML parser rejects falls back to a
// crude tag strip.
func ExtractText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapseSpace(tagPattern.ReplaceAllString(html, " "))
	}
	doc.Find(nonTextSelectors).Remove()
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
