// Package enrich completes search records with data from their detail (abs)
// page and, when one is linked, their HTML full-text page.
package enrich

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/paperscout/internal/crawler"
	"github.com/JakeFAU/paperscout/internal/parser"
)

// Enricher runs the summary and content stages for one record at a time.
// It is safe for concurrent use when the fetcher is.
type Enricher struct {
	fetcher crawler.Fetcher
	parser  *parser.Parser
	logger  *zap.Logger
}

// Result is the outcome of enriching one record: the record plus every page
// fetched for it, in fetch order, for the debug bundle.
type Result struct {
	Record crawler.EnrichedRecord
	Pages  []crawler.BundlePage
}

// New constructs an Enricher.
func New(fetcher crawler.Fetcher, p *parser.Parser, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{fetcher: fetcher, parser: p, logger: logger}
}

// Enrich runs both stages. Failures are recorded on the record and never
// returned as errors.
func (e *Enricher) Enrich(ctx context.Context, raw crawler.RawRecord, politeness crawler.Politeness) Result {
	rec := crawler.NewEnrichedRecord(raw)
	var pages []crawler.BundlePage
	if page, ok := e.Summary(ctx, &rec, politeness); ok {
		pages = append(pages, page)
	}
	if page, ok := e.Content(ctx, &rec, politeness); ok {
		pages = append(pages, page)
	}
	return Result{Record: rec, Pages: pages}
}

// Summary fetches the detail page and fills DOI, version history, last
// update and the full-text link. It backfills the identifier, title, authors
// and abstract only when they are still empty. It reports whether a page was
// fetched.
func (e *Enricher) Summary(ctx context.Context, rec *crawler.EnrichedRecord, politeness crawler.Politeness) (crawler.BundlePage, bool) {
	if strings.TrimSpace(rec.AbsURL) == "" {
		return crawler.BundlePage{}, false
	}
	resp := e.fetcher.Fetch(ctx, crawler.FetchRequest{URL: rec.AbsURL, Kind: crawler.PageKindAbstract, Politeness: politeness})
	page := bundlePage(crawler.PageKindAbstract, rec.AbsURL, resp)
	if !resp.OK() {
		rec.Errors = append(rec.Errors, crawler.StageHTTPCode(crawler.PageKindAbstract, resp.StatusCode))
		e.logger.Warn("detail page fetch failed",
			zap.String("arxiv_id", rec.ArxivID),
			zap.String("url", rec.AbsURL),
			zap.Int("status", resp.StatusCode),
			zap.String("error", resp.Err),
		)
		return page, true
	}

	details := e.parser.ParseAbsPage(resp.Body)
	rec.DOI = details.DOI
	rec.Versions = details.Versions
	rec.LastUpdatedRaw = details.LastUpdatedRaw
	rec.HTMLURL = details.HTMLURL
	if rec.ArxivID == "" {
		rec.ArxivID = details.ArxivID
	}
	if strings.TrimSpace(rec.Title) == "" {
		rec.Title = details.Title
	}
	if len(rec.Authors) == 0 && len(details.Authors) > 0 {
		rec.Authors = details.Authors
	}
	if strings.TrimSpace(rec.Abstract) == "" {
		rec.Abstract = details.Abstract
	}
	if rec.ArxivID != "" && rec.PDFURL == "" {
		rec.PDFURL = crawler.PDFURL(e.parser.BaseURL(), rec.ArxivID)
	}
	return page, true
}

// Content fetches the full-text page discovered by Summary and fills the
// method excerpt and references. Without a link it does nothing.
func (e *Enricher) Content(ctx context.Context, rec *crawler.EnrichedRecord, politeness crawler.Politeness) (crawler.BundlePage, bool) {
	if strings.TrimSpace(rec.HTMLURL) == "" {
		return crawler.BundlePage{}, false
	}
	resp := e.fetcher.Fetch(ctx, crawler.FetchRequest{URL: rec.HTMLURL, Kind: crawler.PageKindContent, Politeness: politeness})
	page := bundlePage(crawler.PageKindContent, rec.HTMLURL, resp)
	if !resp.OK() {
		rec.Errors = append(rec.Errors, crawler.StageHTTPCode(crawler.PageKindContent, resp.StatusCode))
		e.logger.Warn("content page fetch failed",
			zap.String("arxiv_id", rec.ArxivID),
			zap.String("url", rec.HTMLURL),
			zap.Int("status", resp.StatusCode),
			zap.String("error", resp.Err),
		)
		return page, true
	}

	details := e.parser.ParseContentPage(resp.Body)
	rec.Method = details.Method
	rec.References = details.References
	return page, true
}

func bundlePage(kind crawler.PageKind, url string, resp crawler.FetchResponse) crawler.BundlePage {
	return crawler.BundlePage{Kind: kind, URL: url, StatusCode: resp.StatusCode, Body: resp.Body}
}
