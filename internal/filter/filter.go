package filter

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/paperscout/internal/crawler"
)

// Filter applies the category and keyword stages for a configured theme table.
type Filter struct {
	themes   map[string]Theme
	keywords map[string][]string
	union    []string
}

// Result is the outcome of Apply.
type Result struct {
	Records []crawler.RawRecord
	Allowed []string
}

// New builds a Filter. A nil or empty table falls back to DefaultThemes.
func New(themes map[string]Theme) *Filter {
	if len(themes) == 0 {
		themes = DefaultThemes()
	}
	f := &Filter{
		themes:   make(map[string]Theme, len(themes)),
		keywords: make(map[string][]string, len(themes)),
	}
	seen := make(map[string]struct{})
	for name, theme := range themes {
		key := strings.ToLower(strings.TrimSpace(name))
		f.themes[key] = Theme{
			Categories: append([]string(nil), theme.Categories...),
			Keywords:   append([]string(nil), theme.Keywords...),
		}
		folded := make([]string, 0, len(theme.Keywords))
		for _, kw := range theme.Keywords {
			if kw = fold(kw); kw != "" {
				folded = append(folded, kw)
			}
		}
		f.keywords[key] = folded
		for _, cat := range theme.Categories {
			if _, ok := seen[cat]; !ok {
				seen[cat] = struct{}{}
				f.union = append(f.union, cat)
			}
		}
	}
	sort.Strings(f.union)
	return f
}

// Themes lists the configured theme names in sorted order.
func (f *Filter) Themes() []string {
	names := make([]string, 0, len(f.themes))
	for name := range f.themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Theme returns the configuration for name.
func (f *Filter) Theme(name string) (Theme, bool) {
	t, ok := f.themes[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// AllowedCategories returns the theme's allowlist, or the sorted union of all
// themes when the theme is empty or unknown.
func (f *Filter) AllowedCategories(theme string) []string {
	if t, ok := f.Theme(theme); ok {
		return append([]string{}, t.Categories...)
	}
	return append([]string{}, f.union...)
}

// Apply runs the category stage and, when keywordStage is set, the keyword stage.
func (f *Filter) Apply(records []crawler.RawRecord, theme string, keywordStage bool) Result {
	allowed := f.AllowedCategories(theme)
	kept := ByCategory(records, allowed)
	if keywordStage {
		kept = f.ByKeyword(kept, theme)
	}
	return Result{Records: kept, Allowed: allowed}
}

// ByCategory keeps records whose categories intersect allowed. Records
// without any category are kept.
func ByCategory(records []crawler.RawRecord, allowed []string) []crawler.RawRecord {
	set := make(map[string]struct{}, len(allowed))
	for _, cat := range allowed {
		set[cat] = struct{}{}
	}
	out := make([]crawler.RawRecord, 0, len(records))
	for _, rec := range records {
		if len(rec.AllCategories) == 0 {
			out = append(out, rec)
			continue
		}
		for _, cat := range rec.AllCategories {
			if _, ok := set[cat]; ok {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

// ByKeyword keeps records whose title or abstract mentions one of the theme's
// keywords. Without a known theme or keywords every record passes.
func (f *Filter) ByKeyword(records []crawler.RawRecord, theme string) []crawler.RawRecord {
	keywords := f.keywords[strings.ToLower(strings.TrimSpace(theme))]
	if len(keywords) == 0 {
		return append([]crawler.RawRecord{}, records...)
	}
	out := make([]crawler.RawRecord, 0, len(records))
	for _, rec := range records {
		text := fold(rec.Title + " " + rec.Abstract)
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

func fold(s string) string {
	return strings.TrimSpace(cases.Fold().String(norm.NFKC.String(s)))
}
