package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paperscout/internal/crawler"
)

func record(id, title string) crawler.EnrichedRecord {
	return crawler.NewEnrichedRecord(crawler.RawRecord{
		ArxivID:       id,
		Title:         title,
		SubmittedDate: "3 January, 2024",
		AbsURL:        "https://arxiv.org/abs/" + id,
		PDFURL:        "https://arxiv.org/pdf/" + id,
		Abstract:      "We study   things\nacross lines.",
	})
}

func TestBuildContextRendersBlocks(t *testing.T) {
	t.Parallel()

	first := record("2401.00001", "First")
	first.DOI = "https://doi.org/10.1/x"
	first.Method = "We fine-tune."
	out := BuildContext([]crawler.EnrichedRecord{first, record("2401.00002", "Second")}, 0)

	require.Equal(t, "[PAPER 1]\n"+
		"arxiv_id: 2401.00001\n"+
		"title: First\n"+
		"submitted_date: 3 January, 2024\n"+
		"abs_url: https://arxiv.org/abs/2401.00001\n"+
		"pdf_url: https://arxiv.org/pdf/2401.00001\n"+
		"doi: https://doi.org/10.1/x\n"+
		"abstract: We study things across lines.\n"+
		"method: We fine-tune.\n"+
		"\n"+
		"[PAPER 2]\n"+
		"arxiv_id: 2401.00002\n"+
		"title: Second\n"+
		"submitted_date: 3 January, 2024\n"+
		"abs_url: https://arxiv.org/abs/2401.00002\n"+
		"pdf_url: https://arxiv.org/pdf/2401.00002\n"+
		"doi: \n"+
		"abstract: We study things across lines.\n", out)
}

func TestBuildContextStopsBeforeLimit(t *testing.T) {
	t.Parallel()

	items := []crawler.EnrichedRecord{record("2401.00001", "A"), record("2401.00002", "B"), record("2401.00003", "C")}
	one := BuildContext(items[:1], 0)
	limit := utf8.RuneCountInString(one) + 10

	out := BuildContext(items, limit)
	require.Equal(t, one, out)
	require.Empty(t, BuildContext(items, 5))
	require.Empty(t, BuildContext(nil, 100))
}

func TestBuildContextTruncatesMethod(t *testing.T) {
	t.Parallel()

	rec := record("2401.00001", "A")
	rec.Method = strings.Repeat("é", 1000)
	out := BuildContext([]crawler.EnrichedRecord{rec}, 0)

	line := out[strings.Index(out, "method: ")+len("method: "):]
	line = strings.TrimSuffix(line, "\n")
	require.Equal(t, methodExcerptChars, utf8.RuneCountInString(line))
	require.True(t, strings.HasSuffix(line, "…"))
}

func TestBuildStrictPrompt(t *testing.T) {
	t.Parallel()

	p := BuildStrictPrompt("  What is new?  ", "[PAPER 1]\n")
	require.True(t, strings.HasPrefix(p, "You are a research assistant.\n"))
	require.Contains(t, p, "QUESTION:\nWhat is new?\n\nCONTEXT:\n[PAPER 1]\n")
}
