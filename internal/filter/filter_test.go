package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paperscout/internal/crawler"
)

func sampleRecords() []crawler.RawRecord {
	return []crawler.RawRecord{
		{ArxivID: "1", Title: "Transformers for Vision", AllCategories: []string{"cs.CV"}},
		{ArxivID: "2", Title: "Lattice attacks", AllCategories: []string{"cs.CR"}},
		{ArxivID: "3", Title: "Unlabelled record about Deep Learning"},
		{ArxivID: "4", Title: "Sorting networks", Abstract: "a note", AllCategories: []string{"cs.DS", "cs.LG"}},
		{ArxivID: "5", Title: "Nothing relevant here"},
	}
}

func ids(records []crawler.RawRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ArxivID)
	}
	return out
}

func TestAllowedCategories(t *testing.T) {
	t.Parallel()

	f := New(nil)
	require.Equal(t, []string{"cs.CR"}, f.AllowedCategories("cyber_crypto"))
	require.Equal(t, []string{"cs.CR"}, f.AllowedCategories(" CYBER_CRYPTO "))

	union := f.AllowedCategories("")
	require.Len(t, union, 21)
	require.IsNonDecreasing(t, union)
	require.Equal(t, union, f.AllowedCategories("unknown-theme"))

	union[0] = "mutated"
	require.NotEqual(t, "mutated", f.AllowedCategories("")[0], "callers must get a copy")
}

func TestByCategoryKeepsEmptyCategorySets(t *testing.T) {
	t.Parallel()

	got := ByCategory(sampleRecords(), []string{"cs.LG"})
	require.Equal(t, []string{"3", "4", "5"}, ids(got))
}

func TestByKeyword(t *testing.T) {
	t.Parallel()

	f := New(nil)
	got := f.ByKeyword(sampleRecords(), "ai_ml")
	require.Equal(t, []string{"1", "3"}, ids(got))

	require.Len(t, f.ByKeyword(sampleRecords(), ""), 5, "no theme means no keyword stage")
	require.Len(t, f.ByKeyword(sampleRecords(), "nope"), 5)

	noKeywords := New(map[string]Theme{"bare": {Categories: []string{"cs.AI"}}})
	require.Len(t, noKeywords.ByKeyword(sampleRecords(), "bare"), 5)
}

func TestByKeywordFoldsCaseAndCompatibilityForms(t *testing.T) {
	t.Parallel()

	f := New(map[string]Theme{"x": {Keywords: []string{"Static Analysis"}}})
	recs := []crawler.RawRecord{
		{ArxivID: "a", Abstract: "We present STATIC ANALYSIS for Go."},
		{ArxivID: "b", Title: "Static Analуsis with a cyrillic letter"},
	}
	require.Equal(t, []string{"a"}, ids(f.ByKeyword(recs, "x")))
}

func TestApplyIsIdempotent(t *testing.T) {
	t.Parallel()

	f := New(nil)
	for _, theme := range []string{"ai_ml", "algo_ds", "", "unknown"} {
		for _, kw := range []bool{true, false} {
			first := f.Apply(sampleRecords(), theme, kw)
			second := f.Apply(first.Records, theme, kw)
			require.Equal(t, first.Records, second.Records, "theme=%q keyword=%v", theme, kw)
			require.Equal(t, first.Allowed, second.Allowed)
		}
	}
}

func TestApplyAIML(t *testing.T) {
	t.Parallel()

	res := New(nil).Apply(sampleRecords(), "ai_ml", true)
	// Category stage keeps 1, 3, 4, 5; keyword stage drops 4 and 5.
	require.Equal(t, []string{"1", "3"}, ids(res.Records))
	require.Contains(t, res.Allowed, "stat.ML")
}

func TestThemes(t *testing.T) {
	t.Parallel()

	f := New(nil)
	require.Equal(t, []string{"ai_ml", "algo_ds", "cyber_crypto", "hci_data", "net_sys", "pl_se"}, f.Themes())
	theme, ok := f.Theme("net_sys")
	require.True(t, ok)
	require.Contains(t, theme.Keywords, "cloud")
}
