package enrich

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paperscout/internal/crawler"
	"github.com/JakeFAU/paperscout/internal/parser"
)

const absPage = `<html><head>
<meta name="citation_title" content="Backfilled Title"/>
<meta name="citation_author" content="Doe, Jane"/>
<meta name="citation_arxiv_id" content="2401.01234"/>
</head><body>
<blockquote class="abstract"><span class="descriptor">Abstract:</span> A backfilled abstract.</blockquote>
<table><tr><td class="tablecell doi"><a href="https://doi.org/10.1/xyz">https://doi.org/10.1/xyz</a></td></tr></table>
<div class="submission-history"><strong>[v1]</strong> Mon, 1 Jan 2024 <strong>[v2]</strong> Tue, 2 Jan 2024</div>
<a href="/html/2401.01234v2">HTML (experimental)</a>
</body></html>`

const contentPage = `<html><body>
<section class="ltx_section"><h2 class="ltx_title">2 Method</h2><p>We do things.</p></section>
<section class="ltx_bibliography"><ul class="ltx_biblist"><li>Ref one.</li></ul></section>
</body></html>`

type stubFetcher struct {
	mu        sync.Mutex
	responses map[string]crawler.FetchResponse
	requests  []crawler.FetchRequest
}

func (s *stubFetcher) Fetch(_ context.Context, req crawler.FetchRequest) crawler.FetchResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if resp, ok := s.responses[req.URL]; ok {
		resp.URL = req.URL
		return resp
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusNotFound}
}

func ok(body string) crawler.FetchResponse {
	return crawler.FetchResponse{StatusCode: http.StatusOK, Body: []byte(body)}
}

func newEnricher(f crawler.Fetcher) *Enricher {
	return New(f, parser.New(parser.Config{BaseURL: "https://arxiv.org"}), nil)
}

func TestEnrichFillsSummaryAndContent(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{responses: map[string]crawler.FetchResponse{
		"https://arxiv.org/abs/2401.01234":    ok(absPage),
		"https://arxiv.org/html/2401.01234v2": ok(contentPage),
	}}
	raw := crawler.RawRecord{
		ArxivID:  "2401.01234",
		Title:    "Original Title",
		Abstract: "",
		AbsURL:   "https://arxiv.org/abs/2401.01234",
		PDFURL:   "https://arxiv.org/pdf/2401.01234",
	}
	pol := crawler.Politeness{Min: 1, Max: 2}

	res := newEnricher(f).Enrich(context.Background(), raw, pol)
	rec := res.Record

	require.Equal(t, "Original Title", rec.Title, "non-empty fields are not overwritten")
	require.Equal(t, "A backfilled abstract.", rec.Abstract)
	require.Equal(t, []string{"Doe, Jane"}, rec.Authors)
	require.Equal(t, "https://doi.org/10.1/xyz", rec.DOI)
	require.Equal(t, []crawler.Version{{Version: "v1", Raw: "Mon, 1 Jan 2024"}, {Version: "v2", Raw: "Tue, 2 Jan 2024"}}, rec.Versions)
	require.Equal(t, "Tue, 2 Jan 2024", rec.LastUpdatedRaw)
	require.Equal(t, "https://arxiv.org/html/2401.01234v2", rec.HTMLURL)
	require.Equal(t, "We do things.", rec.Method)
	require.Equal(t, []string{"Ref one."}, rec.References)
	require.Empty(t, rec.Errors)

	require.Len(t, res.Pages, 2)
	require.Equal(t, crawler.PageKindAbstract, res.Pages[0].Kind)
	require.Equal(t, crawler.PageKindContent, res.Pages[1].Kind)
	require.Equal(t, http.StatusOK, res.Pages[1].StatusCode)

	require.Len(t, f.requests, 2)
	require.Equal(t, pol, f.requests[0].Politeness)
	require.Equal(t, crawler.PageKindContent, f.requests[1].Kind)
}

func TestEnrichDetailFailureKeepsDefaults(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{responses: map[string]crawler.FetchResponse{
		"https://arxiv.org/abs/2401.00500": {StatusCode: http.StatusInternalServerError, Body: []byte("oops")},
	}}
	raw := crawler.RawRecord{ArxivID: "2401.00500", AbsURL: "https://arxiv.org/abs/2401.00500"}

	res := newEnricher(f).Enrich(context.Background(), raw, crawler.Politeness{})
	require.Equal(t, []string{"abs_http_500"}, res.Record.Errors)
	require.NotNil(t, res.Record.Versions)
	require.Empty(t, res.Record.Versions)
	require.Empty(t, res.Record.DOI)
	require.Empty(t, res.Record.HTMLURL)
	require.Len(t, res.Pages, 1)
	require.Len(t, f.requests, 1, "content stage needs a discovered link")
}

func TestEnrichContentFailureRecordsError(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{responses: map[string]crawler.FetchResponse{
		"https://arxiv.org/abs/2401.01234": ok(absPage),
	}}
	raw := crawler.RawRecord{ArxivID: "2401.01234", AbsURL: "https://arxiv.org/abs/2401.01234"}

	res := newEnricher(f).Enrich(context.Background(), raw, crawler.Politeness{})
	require.Equal(t, []string{"html_http_404"}, res.Record.Errors)
	require.Empty(t, res.Record.Method)
	require.Empty(t, res.Record.References)
	require.Len(t, res.Pages, 2)
}

func TestEnrichBackfillsIdentifierOnlyWhenEmpty(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{responses: map[string]crawler.FetchResponse{
		"https://arxiv.org/abs/x": ok(absPage),
	}}

	res := newEnricher(f).Enrich(context.Background(), crawler.RawRecord{AbsURL: "https://arxiv.org/abs/x"}, crawler.Politeness{})
	require.Equal(t, "2401.01234", res.Record.ArxivID)
	require.Equal(t, "https://arxiv.org/pdf/2401.01234", res.Record.PDFURL)
	require.Equal(t, "Backfilled Title", res.Record.Title)

	res = newEnricher(f).Enrich(context.Background(), crawler.RawRecord{ArxivID: "9999.99999", AbsURL: "https://arxiv.org/abs/x"}, crawler.Politeness{})
	require.Equal(t, "9999.99999", res.Record.ArxivID)
}

func TestEnrichWithoutDetailURL(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{}
	res := newEnricher(f).Enrich(context.Background(), crawler.RawRecord{Title: "t"}, crawler.Politeness{})
	require.Empty(t, f.requests)
	require.Empty(t, res.Pages)
	require.Empty(t, res.Record.Errors)
	require.NotNil(t, res.Record.Authors)
}

func TestEnrichNetworkFailure(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{responses: map[string]crawler.FetchResponse{
		"https://arxiv.org/abs/1": crawler.FailedResponse("https://arxiv.org/abs/1", context.DeadlineExceeded, 1, 0),
	}}
	res := newEnricher(f).Enrich(context.Background(), crawler.RawRecord{AbsURL: "https://arxiv.org/abs/1"}, crawler.Politeness{})
	require.Equal(t, []string{"abs_http_0"}, res.Record.Errors)
}
