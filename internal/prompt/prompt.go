// Package prompt renders enriched records into bounded text blocks for a
// language model prompt.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/paperscout/internal/crawler"
)

// DefaultMaxChars bounds the context when the caller passes no limit.
const DefaultMaxChars = 12000

// methodExcerptChars bounds the method excerpt of one block.
const methodExcerptChars = 400

// BuildContext renders one [PAPER i] block per item, in order, and stops
// before the block that would push the total past maxChars. Lengths are
// counted in characters.
func BuildContext(items []crawler.EnrichedRecord, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	chunks := make([]string, 0, len(items))
	total := 0
	for i, item := range items {
		block := renderBlock(i+1, item)
		n := utf8.RuneCountInString(block)
		if total+n > maxChars {
			break
		}
		chunks = append(chunks, block)
		total += n
	}
	return strings.Join(chunks, "\n")
}

func renderBlock(n int, item crawler.EnrichedRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[PAPER %d]\n", n)
	field(&b, "arxiv_id", item.ArxivID)
	field(&b, "title", item.Title)
	field(&b, "submitted_date", item.SubmittedDate)
	field(&b, "abs_url", item.AbsURL)
	field(&b, "pdf_url", item.PDFURL)
	field(&b, "doi", item.DOI)
	field(&b, "abstract", item.Abstract)
	if method := clean(item.Method); method != "" {
		field(&b, "method", excerpt(method, methodExcerptChars))
	}
	return b.String()
}

func field(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "%s: %s\n", name, clean(value))
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// excerpt cuts s to at most limit characters, marking the cut with an ellipsis.
func excerpt(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

// BuildStrictPrompt asks the model to answer only from context.
func BuildStrictPrompt(question, context string) string {
	var b strings.Builder
	b.WriteString("You are a research assistant.\n")
	b.WriteString("Answer ONLY from the CONTEXT provided.\n")
	b.WriteString("If a piece of information is not in the context, say: \"I cannot confirm this from the context\".\n")
	b.WriteString("\n")
	b.WriteString("Expected format:\n")
	b.WriteString("1) Short answer (3-6 lines)\n")
	b.WriteString("2) Key points (5 bullets)\n")
	b.WriteString("3) Sources (short list)\n")
	b.WriteString("\n")
	fmt.Fprintf(&b, "QUESTION:\n%s\n\n", strings.TrimSpace(question))
	fmt.Fprintf(&b, "CONTEXT:\n%s\n", context)
	return b.String()
}
