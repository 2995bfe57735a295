// Package parser extracts structured paper metadata from arXiv search result
// pages, abstract (detail) pages and HTML full-text (content) pages.
//
// Parsing never fails on malformed markup: a missing element yields an empty
// value for the field it feeds.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/paperscout/internal/anomaly"
	"github.com/JakeFAU/paperscout/internal/crawler"
)

// Parser holds the upstream layout parameters needed to build absolute links.
type Parser struct {
	baseURL    string
	searchPath string
	pageSize   int
	detector   *anomaly.Detector
}

// Config configures a Parser.
type Config struct {
	BaseURL    string
	SearchPath string
	PageSize   int
	// Detector evaluates search pages; nil uses anomaly.DefaultMarkers.
	Detector *anomaly.Detector
}

// New returns a Parser. Zero values fall back to the public arXiv layout.
func New(cfg Config) *Parser {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://arxiv.org"
	}
	if cfg.SearchPath == "" {
		cfg.SearchPath = "/search/cs"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.Detector == nil {
		cfg.Detector = anomaly.New(anomaly.DefaultMarkers())
	}
	return &Parser{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		searchPath: "/" + strings.TrimLeft(cfg.SearchPath, "/"),
		pageSize:   cfg.PageSize,
		detector:   cfg.Detector,
	}
}

// PageSize is the number of results requested per search page.
func (p *Parser) PageSize() int {
	return p.pageSize
}

// BaseURL is the upstream origin used for link reconstruction.
func (p *Parser) BaseURL() string {
	return p.baseURL
}

// SearchURL builds the search URL for one results page.
func (p *Parser) SearchURL(query string, start int, sort crawler.SortMode) string {
	var b strings.Builder
	b.WriteString(p.baseURL)
	b.WriteString(p.searchPath)
	b.WriteString("?query=")
	b.WriteString(url.QueryEscape(strings.TrimSpace(query)))
	b.WriteString("&searchtype=all&abstracts=show&size=")
	b.WriteString(strconv.Itoa(p.pageSize))
	b.WriteString("&start=")
	b.WriteString(strconv.Itoa(start))
	if sort == crawler.SortRecency {
		b.WriteString("&order=-announced_date_first")
	}
	return b.String()
}

func newDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// flatText joins the trimmed text nodes under sel with single spaces,
// skipping script and style content.
func flatText(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func attr(sel *goquery.Selection, name string) string {
	v, _ := sel.Attr(name)
	return strings.TrimSpace(v)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
