// Package audit computes which fields of an enriched record are still empty
// and where a reader could look them up by hand.
package audit

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/paperscout/internal/crawler"
)

// Fields is the fixed, ordered list of audited fields. It doubles as the
// run's supported_fields.
var Fields = []string{
	"arxiv_id",
	"title",
	"authors",
	"abstract",
	"method",
	"references",
	"submitted_date",
	"abs_url",
	"pdf_url",
	"doi",
	"versions",
	"last_updated_raw",
	"primary_category",
	"all_categories",
}

var placeholders = map[string]struct{}{
	"n/a":  {},
	"null": {},
	"none": {},
}

// sources maps a field to the page a human would check for it.
var sources = map[string]source{
	"arxiv_id":         sourceAbs,
	"title":            sourceAbs,
	"authors":          sourceAbs,
	"abstract":         sourceAbs,
	"submitted_date":   sourceAbs,
	"abs_url":          sourceAbs,
	"pdf_url":          sourceAbs,
	"doi":              sourceAbs,
	"versions":         sourceAbs,
	"last_updated_raw": sourceAbs,
	"primary_category": sourceAbs,
	"all_categories":   sourceAbs,
	"method":           sourceContent,
	"references":       sourceContent,
}

type source int

const (
	sourceAbs source = iota
	sourceContent
)

// Apply sets MissingFields and MissingHint on rec. It is deterministic and
// only reads the record.
func Apply(rec *crawler.EnrichedRecord) {
	rec.MissingFields = Missing(*rec)
	rec.MissingHint = Hint(*rec, rec.MissingFields)
}

// Missing returns the audited fields that are empty, in Fields order.
func Missing(rec crawler.EnrichedRecord) []string {
	values := map[string]any{
		"arxiv_id":         rec.ArxivID,
		"title":            rec.Title,
		"authors":          rec.Authors,
		"abstract":         rec.Abstract,
		"method":           rec.Method,
		"references":       rec.References,
		"submitted_date":   rec.SubmittedDate,
		"abs_url":          rec.AbsURL,
		"pdf_url":          rec.PDFURL,
		"doi":              rec.DOI,
		"versions":         rec.Versions,
		"last_updated_raw": rec.LastUpdatedRaw,
		"primary_category": rec.PrimaryCategory,
		"all_categories":   rec.AllCategories,
	}
	missing := []string{}
	for _, field := range Fields {
		if IsEmpty(values[field]) {
			missing = append(missing, field)
		}
	}
	return missing
}

// IsEmpty reports whether v counts as missing: nil, a blank or placeholder
// string, or an empty list.
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		if s == "" {
			return true
		}
		_, placeholder := placeholders[s]
		return placeholder
	case []string:
		for _, item := range val {
			if !IsEmpty(item) {
				return false
			}
		}
		return true
	case []crawler.Version:
		return len(val) == 0
	default:
		return false
	}
}

// Hint names the pages where the missing fields can be verified. It returns
// an empty string when nothing is missing.
func Hint(rec crawler.EnrichedRecord, missing []string) string {
	if len(missing) == 0 {
		return ""
	}
	var absFields, contentFields []string
	for _, field := range missing {
		if sources[field] == sourceContent {
			contentFields = append(contentFields, field)
		} else {
			absFields = append(absFields, field)
		}
	}

	var parts []string
	if len(absFields) > 0 && !IsEmpty(rec.AbsURL) {
		parts = append(parts, fmt.Sprintf("check %s on the abstract page %s", strings.Join(absFields, ", "), rec.AbsURL))
	}
	if len(contentFields) > 0 {
		switch {
		case !IsEmpty(rec.HTMLURL):
			parts = append(parts, fmt.Sprintf("check %s on the HTML full text %s", strings.Join(contentFields, ", "), rec.HTMLURL))
		case !IsEmpty(rec.PDFURL):
			parts = append(parts, fmt.Sprintf("check %s in the PDF %s", strings.Join(contentFields, ", "), rec.PDFURL))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("missing %s; no source URL available", strings.Join(missing, ", "))
	}
	return strings.Join(parts, "; ")
}
