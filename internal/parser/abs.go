package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/paperscout/internal/crawler"
)

var (
	versionMarkerRe = regexp.MustCompile(`\[(v\d+)\]`)
	versionLineRe   = regexp.MustCompile(`\[(v\d+)\]\s*(.*)$`)
	abstractLabelRe = regexp.MustCompile(`(?i)^\s*Abstract:\s*`)
)

// AbsDetails is what a detail page contributes to a record.
type AbsDetails struct {
	ArxivID        string
	Title          string
	Authors        []string
	Abstract       string
	DOI            string
	Versions       []crawler.Version
	LastUpdatedRaw string
	HTMLURL        string
}

// ParseAbsPage extracts identifiers, version history, abstract and the
// full-text link from a detail page. Versions is never nil.
func (p *Parser) ParseAbsPage(body []byte) AbsDetails {
	out := AbsDetails{Versions: []crawler.Version{}, Authors: []string{}}
	doc, err := newDocument(body)
	if err != nil {
		return out
	}

	out.ArxivID = attr(doc.Find(`meta[name="citation_arxiv_id"]`).First(), "content")
	if out.ArxivID == "" {
		out.ArxivID = crawler.IDFromURL(attr(doc.Find(`link[rel="canonical"]`).First(), "href"))
	}
	out.Title = strings.Join(strings.Fields(attr(doc.Find(`meta[name="citation_title"]`).First(), "content")), " ")
	doc.Find(`meta[name="citation_author"]`).Each(func(_ int, m *goquery.Selection) {
		if name := attr(m, "content"); name != "" {
			out.Authors = append(out.Authors, name)
		}
	})

	out.DOI = flatText(doc.Find(`td.tablecell.doi a[href*="doi.org"]`).First())

	if abs := doc.Find("blockquote.abstract").First(); abs.Length() > 0 {
		out.Abstract = strings.TrimSpace(abstractLabelRe.ReplaceAllString(flatText(abs), ""))
	}

	out.Versions = parseVersions(doc.Find("div.submission-history").First())
	if n := len(out.Versions); n > 0 {
		out.LastUpdatedRaw = out.Versions[n-1].Raw
	}

	out.HTMLURL = crawler.AbsoluteURL(p.baseURL, attr(doc.Find(`a[href^="/html/"], a[href*="/html/"]`).First(), "href"))
	return out
}

// parseVersions reads "[vN] description" entries either from list items or,
// for the plain markup arXiv serves, from the flattened history text.
func parseVersions(history *goquery.Selection) []crawler.Version {
	versions := []crawler.Version{}
	if history.Length() == 0 {
		return versions
	}
	items := history.Find("li")
	if items.Length() > 0 {
		items.Each(func(_ int, li *goquery.Selection) {
			if m := versionLineRe.FindStringSubmatch(flatText(li)); m != nil {
				versions = append(versions, crawler.Version{Version: m[1], Raw: strings.TrimSpace(m[2])})
			}
		})
		return versions
	}

	text := flatText(history)
	marks := versionMarkerRe.FindAllStringSubmatchIndex(text, -1)
	for i, m := range marks {
		end := len(text)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		versions = append(versions, crawler.Version{
			Version: text[m[2]:m[3]],
			Raw:     strings.TrimSpace(text[m[1]:end]),
		})
	}
	return versions
}
