package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/paperscout/internal/crawler"
	"github.com/JakeFAU/paperscout/internal/prompt"
)

type searchOptions struct {
	query        string
	theme        string
	sort         string
	maxResults   int
	politeMin    float64
	politeMax    float64
	noEnrich     bool
	noKeyword    bool
	output       string
	question     string
	contextChars int
	failOnErrors bool
}

// runSummary is the compact report printed by default.
type runSummary struct {
	RunID            string   `json:"run_id"`
	OK               bool     `json:"ok"`
	Query            string   `json:"query"`
	Theme            string   `json:"theme"`
	CountCollected   int      `json:"count_collected"`
	CountAfterFilter int      `json:"count_after_theme_filter"`
	Items            int      `json:"items"`
	PagesFetched     int      `json:"pages_fetched"`
	HitLimit         bool     `json:"hit_limit"`
	Errors           []string `json:"errors"`
	SavedTo          string   `json:"saved_to"`
	BundleFile       string   `json:"bundle_html_file"`
}

func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Runs one search and prints the outcome",
		Long: `Runs the full pipeline for a single query: paging through search
results, filtering by theme, enriching each paper and persisting the run.
The result is printed as JSON on stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearchCommand(cmd, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.query, "query", "q", "", "search query (required)")
	flags.StringVar(&opts.theme, "theme", "", "research theme used for filtering; empty allows every theme")
	flags.StringVar(&opts.sort, "sort", string(crawler.SortRelevance), "result order: relevance or recency")
	flags.IntVarP(&opts.maxResults, "max-results", "n", 0, "maximum number of papers (0 uses the configured default)")
	flags.Float64Var(&opts.politeMin, "polite-min", 0, "minimum delay between requests in seconds")
	flags.Float64Var(&opts.politeMax, "polite-max", 0, "maximum delay between requests in seconds")
	flags.BoolVar(&opts.noEnrich, "no-enrich", false, "skip abstract and full-text pages")
	flags.BoolVar(&opts.noKeyword, "no-keyword-filter", false, "filter by category only")
	flags.StringVarP(&opts.output, "output", "o", "summary", "output format: summary, full or context")
	flags.StringVar(&opts.question, "question", "", "with --output context, wrap the context in a grounded prompt")
	flags.IntVar(&opts.contextChars, "context-chars", 0, "context size limit (0 uses the configured default)")
	flags.BoolVar(&opts.failOnErrors, "fail-on-errors", false, "exit non-zero when the run reports errors")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func runSearchCommand(cmd *cobra.Command, opts *searchOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()

	format := strings.ToLower(strings.TrimSpace(opts.output))
	switch format {
	case "summary", "full", "context":
	default:
		return fmt.Errorf("unknown output format %q", opts.output)
	}

	req := crawler.SearchRequest{
		Query:                opts.query,
		Theme:                opts.theme,
		Sort:                 crawler.SortMode(strings.ToLower(opts.sort)),
		MaxResults:           opts.maxResults,
		PoliteMinSeconds:     opts.politeMin,
		PoliteMaxSeconds:     opts.politeMax,
		SkipEnrichment:       opts.noEnrich,
		DisableKeywordFilter: opts.noKeyword,
	}
	if req.MaxResults == 0 {
		req.MaxResults = cfg.Upstream.DefaultMaxItems
	}

	result := appInstance.Runner().Run(cmd.Context(), req)
	appInstance.Logger().Info("search command finished",
		zap.String("run_id", result.RunID),
		zap.Bool("ok", result.OK),
		zap.Int("items", len(result.Items)),
	)

	out := cmd.OutOrStdout()
	switch format {
	case "full":
		err = writeIndented(out, result)
	case "context":
		maxChars := opts.contextChars
		if maxChars == 0 {
			maxChars = cfg.Pipeline.ContextMaxChars
		}
		text := prompt.BuildContext(result.Items, maxChars)
		if q := strings.TrimSpace(opts.question); q != "" {
			text = prompt.BuildStrictPrompt(q, text)
		}
		_, err = fmt.Fprintln(out, text)
	default:
		err = writeIndented(out, summarize(result))
	}
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if opts.failOnErrors && !result.OK {
		return fmt.Errorf("run %s finished with errors: %s", result.RunID, strings.Join(result.Errors, ", "))
	}
	return nil
}

func summarize(result crawler.RunResult) runSummary {
	return runSummary{
		RunID:            result.RunID,
		OK:               result.OK,
		Query:            result.Request.Query,
		Theme:            result.Request.Theme,
		CountCollected:   result.CountCollected,
		CountAfterFilter: result.CountAfterFilter,
		Items:            len(result.Items),
		PagesFetched:     result.PagesFetched,
		HitLimit:         result.HitLimit,
		Errors:           append([]string{}, result.Errors...),
		SavedTo:          result.SavedTo,
		BundleFile:       result.BundleFile,
	}
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
