package parser

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/paperscout/internal/crawler"
)

const (
	resultSelector = "ol.breathe-horizontal li.arxiv-result"
	lessMarker     = "△ Less"
)

var (
	categoryBadgeRe = regexp.MustCompile(`^(?:cs|stat|eess)\.[A-Z]{2}$`)
	categoryTextRe  = regexp.MustCompile(`\(((?:cs|stat|eess)\.[A-Z]{2})\)`)
	submittedRe     = regexp.MustCompile(`(?i)Submitted\s+(.+?)(?:;|$)`)
	absLinkIDRe     = regexp.MustCompile(`/abs/((?:\d{4}\.\d{4,5}|[a-z][a-z\-]*(?:\.[A-Z]{2})?/\d{7})(?:v\d+)?)`)
)

// ParseSearchPage extracts candidate records from a results page along with
// a diagnostic describing how the page was interpreted.
func (p *Parser) ParseSearchPage(pageURL string, status int, body []byte) ([]crawler.RawRecord, crawler.PageDiagnostic) {
	diag := crawler.PageDiagnostic{
		URL:         pageURL,
		StatusCode:  status,
		HasAbsLinks: bytes.Contains(body, []byte("/abs/")),
		Signals:     p.detector.Detect(body),
	}
	doc, err := newDocument(body)
	if err != nil {
		return []crawler.RawRecord{}, diag
	}
	diag.PageTitle = flatText(doc.Find("title").First())

	nodes := doc.Find(resultSelector)
	diag.ResultNodeCount = nodes.Length()
	if nodes.Length() == 0 {
		if !diag.HasAbsLinks {
			return []crawler.RawRecord{}, diag
		}
		diag.FallbackMode = crawler.FallbackModeAbsLinks
		return p.recordsFromAbsLinks(body), diag
	}

	records := make([]crawler.RawRecord, 0, nodes.Length())
	nodes.Each(func(_ int, li *goquery.Selection) {
		records = append(records, p.parseResultNode(li))
	})
	return records, diag
}

func (p *Parser) parseResultNode(li *goquery.Selection) crawler.RawRecord {
	absHref := crawler.AbsoluteURL(p.baseURL, attr(li.Find(`p.list-title a[href*="/abs/"]`).First(), "href"))
	pdfHref := crawler.AbsoluteURL(p.baseURL, attr(li.Find(`p.list-title a[href*="/pdf/"]`).First(), "href"))
	id := crawler.IDFromURL(absHref)
	if id == "" {
		id = crawler.IDFromURL(pdfHref)
	}
	if id != "" && absHref == "" {
		absHref = crawler.AbsURL(p.baseURL, id)
	}
	if id != "" && pdfHref == "" {
		pdfHref = crawler.PDFURL(p.baseURL, id)
	}

	primary, categories := extractCategories(li)
	return crawler.RawRecord{
		ArxivID:         id,
		Title:           flatText(li.Find("p.title").First()),
		Authors:         splitAuthors(flatText(li.Find("p.authors").First())),
		Abstract:        strings.TrimSpace(strings.ReplaceAll(flatText(li.Find("span.abstract-full").First()), lessMarker, "")),
		SubmittedDate:   submittedDate(li),
		AbsURL:          absHref,
		PDFURL:          pdfHref,
		PrimaryCategory: primary,
		AllCategories:   categories,
	}
}

func splitAuthors(raw string) []string {
	raw = strings.Replace(raw, "Authors:", "", 1)
	authors := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}

func submittedDate(li *goquery.Selection) string {
	date := ""
	li.Find("p.is-size-7").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if m := submittedRe.FindStringSubmatch(flatText(sel)); m != nil {
			date = strings.TrimSpace(m[1])
			return false
		}
		return true
	})
	return date
}

// extractCategories prefers explicit category badges and falls back to
// parenthesised codes in the node text. Order is preserved, the first entry
// is the primary category.
func extractCategories(li *goquery.Selection) (string, []string) {
	var cats []string
	li.Find("span.tag").Each(func(_ int, tag *goquery.Selection) {
		if t := flatText(tag); categoryBadgeRe.MatchString(t) {
			cats = append(cats, t)
		}
	})
	if len(cats) == 0 {
		for _, m := range categoryTextRe.FindAllStringSubmatch(flatText(li), -1) {
			cats = append(cats, m[1])
		}
	}
	cats = dedupe(cats)
	if len(cats) == 0 {
		return "", cats
	}
	return cats[0], cats
}

func (p *Parser) recordsFromAbsLinks(body []byte) []crawler.RawRecord {
	var ids []string
	for _, m := range absLinkIDRe.FindAllSubmatch(body, -1) {
		ids = append(ids, string(m[1]))
	}
	ids = dedupe(ids)
	if len(ids) > p.pageSize {
		ids = ids[:p.pageSize]
	}
	records := make([]crawler.RawRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, crawler.RawRecord{
			ArxivID:       id,
			Authors:       []string{},
			AbsURL:        crawler.AbsURL(p.baseURL, id),
			PDFURL:        crawler.PDFURL(p.baseURL, id),
			AllCategories: []string{},
		})
	}
	return records
}
