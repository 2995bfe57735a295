package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	referenceSelector = "ol.ltx_biblist li, ul.ltx_biblist li, div.ltx_bibliography li, section.ltx_bibliography li"
	sectionSelector   = "section.ltx_section, div.ltx_section, section"
	headingSelector   = ".ltx_title, h1, h2, h3, h4"
)

var methodHeadings = []string{"method", "methods", "methodology", "approach"}

// ContentDetails is what a full-text page contributes to a record.
type ContentDetails struct {
	Method     string
	References []string
}

// ParseContentPage extracts the reference list and the first method-like
// section. References is never nil.
func (p *Parser) ParseContentPage(body []byte) ContentDetails {
	out := ContentDetails{References: []string{}}
	doc, err := newDocument(body)
	if err != nil {
		return out
	}

	doc.Find(referenceSelector).Each(func(_ int, li *goquery.Selection) {
		if t := flatText(li); t != "" {
			out.References = append(out.References, t)
		}
	})

	doc.Find(sectionSelector).EachWithBreak(func(_ int, sec *goquery.Selection) bool {
		heading := flatText(sec.Find(headingSelector).First())
		if heading == "" || !isMethodHeading(heading) {
			return true
		}
		out.Method = stripPrefixFold(flatText(sec), heading)
		return false
	})
	return out
}

func isMethodHeading(heading string) bool {
	lower := strings.ToLower(heading)
	for _, k := range methodHeadings {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func stripPrefixFold(s, prefix string) string {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		s = s[len(prefix):]
	}
	return strings.TrimSpace(s)
}
