package audit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paperscout/internal/crawler"
)

func completeRecord() crawler.EnrichedRecord {
	rec := crawler.NewEnrichedRecord(crawler.RawRecord{
		ArxivID:         "2401.01234",
		Title:           "Title",
		Authors:         []string{"Jane Doe"},
		Abstract:        "Abstract.",
		SubmittedDate:   "3 January, 2024",
		AbsURL:          "https://arxiv.org/abs/2401.01234",
		PDFURL:          "https://arxiv.org/pdf/2401.01234",
		PrimaryCategory: "cs.CL",
		AllCategories:   []string{"cs.CL"},
	})
	rec.DOI = "https://doi.org/10.1/x"
	rec.Versions = []crawler.Version{{Version: "v1", Raw: "Mon, 1 Jan 2024"}}
	rec.LastUpdatedRaw = "Mon, 1 Jan 2024"
	rec.HTMLURL = "https://arxiv.org/html/2401.01234v1"
	rec.Method = "We do things."
	rec.References = []string{"Ref."}
	return rec
}

func TestCompleteRecordHasNoMissingFields(t *testing.T) {
	t.Parallel()

	rec := completeRecord()
	Apply(&rec)
	require.NotNil(t, rec.MissingFields)
	require.Empty(t, rec.MissingFields)
	require.Empty(t, rec.MissingHint)
}

func TestIsEmpty(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		value any
		want  bool
	}{
		{"nil", nil, true},
		{"blank", "   ", true},
		{"placeholder n/a", " N/A ", true},
		{"placeholder null", "null", true},
		{"placeholder none", "None", true},
		{"text", "x", false},
		{"empty list", []string{}, true},
		{"list of blanks", []string{" ", "n/a"}, true},
		{"list", []string{"a"}, false},
		{"no versions", []crawler.Version{}, true},
		{"versions", []crawler.Version{{Version: "v1"}}, false},
		{"other", 3, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsEmpty(tc.value))
		})
	}
}

func TestMissingIsDeterministicAndOrdered(t *testing.T) {
	t.Parallel()

	rec := completeRecord()
	rec.Title = "n/a"
	rec.References = nil
	rec.DOI = ""

	first := Missing(rec)
	require.Equal(t, []string{"title", "references", "doi"}, first)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, Missing(rec))
	}
}

func TestHintGroupsFieldsBySource(t *testing.T) {
	t.Parallel()

	rec := completeRecord()
	rec.DOI = ""
	rec.Method = ""
	Apply(&rec)
	require.Equal(t, []string{"method", "doi"}, rec.MissingFields)
	require.Equal(t,
		"check doi on the abstract page https://arxiv.org/abs/2401.01234; check method on the HTML full text https://arxiv.org/html/2401.01234v1",
		rec.MissingHint)

	rec.HTMLURL = ""
	rec.DOI = "x"
	Apply(&rec)
	require.Equal(t, "check method in the PDF https://arxiv.org/pdf/2401.01234", rec.MissingHint)
}

func TestHintWithoutAnyURL(t *testing.T) {
	t.Parallel()

	rec := crawler.NewEnrichedRecord(crawler.RawRecord{Title: "Only a title"})
	Apply(&rec)
	require.Contains(t, rec.MissingFields, "abs_url")
	require.Contains(t, rec.MissingHint, "no source URL available")
}

func TestFallbackRecordMissesEverythingButIdentifiers(t *testing.T) {
	t.Parallel()

	rec := crawler.NewEnrichedRecord(crawler.RawRecord{
		ArxivID: "2401.00001",
		AbsURL:  "https://arxiv.org/abs/2401.00001",
		PDFURL:  "https://arxiv.org/pdf/2401.00001",
	})
	Apply(&rec)
	require.Equal(t, []string{
		"title", "authors", "abstract", "method", "references", "submitted_date",
		"doi", "versions", "last_updated_raw", "primary_category", "all_categories",
	}, rec.MissingFields)
}
