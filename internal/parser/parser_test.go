package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paperscout/internal/crawler"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func newTestParser() *Parser {
	return New(Config{BaseURL: "https://arxiv.org", SearchPath: "/search/cs", PageSize: 50})
}

func TestSearchURL(t *testing.T) {
	t.Parallel()

	p := newTestParser()
	require.Equal(t,
		"https://arxiv.org/search/cs?query=graph+neural+nets%26more&searchtype=all&abstracts=show&size=50&start=100",
		p.SearchURL(" graph neural nets&more ", 100, crawler.SortRelevance))
	require.True(t, strings.HasSuffix(p.SearchURL("q", 0, crawler.SortRecency), "&order=-announced_date_first"))
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	require.Equal(t, "https://arxiv.org", p.BaseURL())
	require.Equal(t, 50, p.PageSize())
	require.Contains(t, p.SearchURL("x", 0, crawler.SortRelevance), "https://arxiv.org/search/cs?")
}

func TestParseSearchPagePrimary(t *testing.T) {
	t.Parallel()

	p := newTestParser()
	records, diag := p.ParseSearchPage("https://arxiv.org/search/cs?query=q", 200, loadFixture(t, "search_results.html"))

	require.Len(t, records, 3)
	require.Equal(t, 3, diag.ResultNodeCount)
	require.Empty(t, diag.FallbackMode)
	require.True(t, diag.HasAbsLinks)
	require.Equal(t, "Search | arXiv e-print repository", diag.PageTitle)
	require.False(t, diag.Signals.Any())

	first := records[0]
	require.Equal(t, "2401.01234", first.ArxivID)
	require.Equal(t, "Multimodal Transformers for Misogyny Detection", first.Title)
	require.Equal(t, []string{"Jane Doe", "Richard Roe"}, first.Authors)
	require.Equal(t, "We study multimodal transformers for detecting misogyny in memes.", first.Abstract)
	require.Equal(t, "3 January, 2024", first.SubmittedDate)
	require.Equal(t, "https://arxiv.org/abs/2401.01234", first.AbsURL)
	require.Equal(t, "https://arxiv.org/pdf/2401.01234", first.PDFURL)
	require.Equal(t, "cs.CL", first.PrimaryCategory)
	require.Equal(t, []string{"cs.CL", "cs.LG"}, first.AllCategories)

	second := records[1]
	require.Equal(t, "2312.99999", second.ArxivID)
	require.Equal(t, "https://arxiv.org/abs/2312.99999", second.AbsURL)
	require.Equal(t, "https://arxiv.org/pdf/2312.99999", second.PDFURL, "download link is rebuilt from the identifier")
	require.Equal(t, []string{"cs.DS", "cs.CC"}, second.AllCategories)
	require.Equal(t, "cs.DS", second.PrimaryCategory)
	require.Equal(t, "30 December, 2023", second.SubmittedDate)
	require.Empty(t, second.Abstract)

	third := records[2]
	require.Empty(t, third.ArxivID)
	require.Empty(t, third.AbsURL)
	require.NotNil(t, third.Authors)
	require.Empty(t, third.Authors)
	require.NotNil(t, third.AllCategories)
	require.Empty(t, third.PrimaryCategory)
}

func TestParseSearchPageFallbackFromAbsLinks(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><head><title>arXiv</title></head><body>
<div class="new-layout">
  <a href="/abs/2401.00001">one</a> <a href="/abs/2401.00001v2">one again</a>
  <a href="https://arxiv.org/abs/2401.00002?context=cs">two</a>
  <a href="/abs/2401.00001">dup</a>
  <a href="/abs/cs/0101001">old style</a>
  <a href="/abs/not-an-id">junk</a>
</div></body></html>`)

	records, diag := newTestParser().ParseSearchPage("u", 200, body)
	require.Equal(t, crawler.FallbackModeAbsLinks, diag.FallbackMode)
	require.Zero(t, diag.ResultNodeCount)
	require.True(t, diag.HasAbsLinks)

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ArxivID)
		require.Empty(t, r.Title)
		require.Empty(t, r.Abstract)
		require.Empty(t, r.Authors)
		require.Empty(t, r.AllCategories)
		require.Equal(t, "https://arxiv.org/abs/"+r.ArxivID, r.AbsURL)
		require.Equal(t, "https://arxiv.org/pdf/"+r.ArxivID, r.PDFURL)
	}
	require.Equal(t, []string{"2401.00001", "2401.00001v2", "2401.00002", "cs/0101001"}, ids)
}

func TestParseSearchPageFallbackIsCappedAtPageSize(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 12; i++ {
		b.WriteString(`<a href="/abs/2401.0000`)
		b.WriteByte(byte('0' + i%10))
		if i >= 10 {
			b.WriteString("v2")
		}
		b.WriteString(`">x</a>`)
	}
	b.WriteString("</body></html>")

	p := New(Config{PageSize: 5})
	records, _ := p.ParseSearchPage("u", 200, []byte(b.String()))
	require.Len(t, records, 5)
}

func TestParseSearchPageEmptyAndMalformed(t *testing.T) {
	t.Parallel()

	p := newTestParser()
	for _, body := range []string{"", "<html", "<<<>>>", "<ol class='breathe-horizontal'><li class='arxiv-result'><p class='title'>"} {
		records, diag := p.ParseSearchPage("u", 200, []byte(body))
		require.NotNil(t, records)
		require.Empty(t, diag.FallbackMode)
		for _, r := range records {
			require.NotNil(t, r.Authors)
		}
	}

	records, diag := p.ParseSearchPage("u", 200, []byte("<p>Sorry, no results found</p>"))
	require.Empty(t, records)
	require.True(t, diag.Signals.NoResults)
}

func TestParseAbsPage(t *testing.T) {
	t.Parallel()

	d := newTestParser().ParseAbsPage(loadFixture(t, "abs_page.html"))
	require.Equal(t, "2401.01234", d.ArxivID)
	require.Equal(t, "Multimodal Transformers for Misogyny Detection", d.Title)
	require.Equal(t, []string{"Doe, Jane", "Roe, Richard"}, d.Authors)
	require.Equal(t, "https://doi.org/10.1145/1234567.890", d.DOI)
	require.Equal(t, "We study multimodal transformers for detecting misogyny in memes.", d.Abstract)
	require.Equal(t, []crawler.Version{
		{Version: "v1", Raw: "Wed, 3 Jan 2024 10:00:00 UTC (512 KB)"},
		{Version: "v2", Raw: "Fri, 9 Feb 2024 12:30:00 UTC (530 KB)"},
	}, d.Versions)
	require.Equal(t, "Fri, 9 Feb 2024 12:30:00 UTC (530 KB)", d.LastUpdatedRaw)
	require.Equal(t, "https://arxiv.org/html/2401.01234v2", d.HTMLURL)
}

func TestParseAbsPageListHistoryAndRelativeHTMLLink(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><head><link rel="canonical" href="https://arxiv.org/abs/2402.00002"/></head><body>
<div class="submission-history"><ul>
  <li><b>[v1]</b> Mon, 5 Feb 2024</li>
  <li>no marker here</li>
  <li>[v3] Tue, 6 Feb 2024</li>
</ul></div>
<a href="/html/2402.00002v3">HTML</a>
</body></html>`)
	d := newTestParser().ParseAbsPage(body)
	require.Equal(t, "2402.00002", d.ArxivID)
	require.Equal(t, []crawler.Version{
		{Version: "v1", Raw: "Mon, 5 Feb 2024"},
		{Version: "v3", Raw: "Tue, 6 Feb 2024"},
	}, d.Versions)
	require.Equal(t, "Tue, 6 Feb 2024", d.LastUpdatedRaw)
	require.Equal(t, "https://arxiv.org/html/2402.00002v3", d.HTMLURL)
	require.Empty(t, d.DOI)
}

func TestParseAbsPageWellFormedWhenEmpty(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"", "<html></html>", "<div class='submission-history'></div>", "garbage <<"} {
		d := newTestParser().ParseAbsPage([]byte(body))
		require.NotNil(t, d.Versions)
		require.Empty(t, d.Versions)
		require.Empty(t, d.LastUpdatedRaw)
		require.Empty(t, d.HTMLURL)
		for _, v := range d.Versions {
			require.Regexp(t, `^v\d+$`, v.Version)
		}
	}
}

func TestParseContentPage(t *testing.T) {
	t.Parallel()

	d := newTestParser().ParseContentPage(loadFixture(t, "content_page.html"))
	require.Equal(t, "We fuse image and text encoders. 3.1 Training We train for ten epochs.", d.Method)
	require.Equal(t, []string{"Vaswani et al. Attention is all you need.", "Radford et al. CLIP."}, d.References)
}

func TestParseContentPageLegacyBibliographyAndNoMethod(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body>
<section><h2>Introduction</h2><p>Hello</p></section>
<div class="ltx_bibliography"><ol class="ltx_biblist"><li>Ref A</li><li>Ref B</li></ol></div>
</body></html>`)
	d := newTestParser().ParseContentPage(body)
	require.Empty(t, d.Method)
	require.Equal(t, []string{"Ref A", "Ref B"}, d.References)

	empty := newTestParser().ParseContentPage(nil)
	require.NotNil(t, empty.References)
	require.Empty(t, empty.Method)
}

func TestParseContentPageApproachHeading(t *testing.T) {
	t.Parallel()

	body := []byte(`<section><h3>Our APPROACH</h3><p>Step one.</p></section><section><h3>Methods</h3><p>Later.</p></section>`)
	d := newTestParser().ParseContentPage(body)
	require.Equal(t, "Step one.", d.Method)
}

func TestFlatTextSkipsScripts(t *testing.T) {
	t.Parallel()

	doc, err := newDocument([]byte(`<div id="x">  Hello <script>var a = 1;</script><b>big
	world</b><style>.c{}</style></div>`))
	require.NoError(t, err)
	require.Equal(t, "Hello big world", flatText(doc.Find("#x")))
	require.Empty(t, flatText(doc.Find("#missing")))
}
