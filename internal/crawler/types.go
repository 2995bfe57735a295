package crawler

import (
	"net/http"
	"strings"
	"time"
)

// SortMode controls the ordering requested from the upstream search.
type SortMode string

// Supported sort modes.
const (
	SortRelevance SortMode = "relevance"
	SortRecency   SortMode = "recency"
)

// ParseSortMode maps user supplied sort names (including legacy aliases) onto a SortMode.
func ParseSortMode(raw string) SortMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "recency", "submitted_date", "submitted", "recent":
		return SortRecency
	default:
		return SortRelevance
	}
}

// SearchRequest captures one pipeline run's inputs. It is not mutated once a run starts.
type SearchRequest struct {
	Query                string   `json:"query"`
	Theme                string   `json:"theme"`
	Sort                 SortMode `json:"sort"`
	MaxResults           int      `json:"max_results"`
	PoliteMinSeconds     float64  `json:"polite_min_seconds"`
	PoliteMaxSeconds     float64  `json:"polite_max_seconds"`
	SkipEnrichment       bool     `json:"skip_enrichment"`
	DisableKeywordFilter bool     `json:"disable_keyword_filter"`
}

// Normalize returns a copy with the cap clamped to [1, hardLimit], the sort
// mode canonicalised and the politeness window made consistent.
func (r SearchRequest) Normalize(hardLimit int) SearchRequest {
	out := r
	out.Query = strings.TrimSpace(out.Query)
	out.Theme = strings.TrimSpace(out.Theme)
	out.Sort = ParseSortMode(string(out.Sort))
	if hardLimit <= 0 {
		hardLimit = 1
	}
	if out.MaxResults < 1 {
		out.MaxResults = 1
	}
	if out.MaxResults > hardLimit {
		out.MaxResults = hardLimit
	}
	if out.PoliteMinSeconds < 0 {
		out.PoliteMinSeconds = 0
	}
	if out.PoliteMaxSeconds < out.PoliteMinSeconds {
		out.PoliteMaxSeconds = out.PoliteMinSeconds
	}
	return out
}

// Politeness returns the request's politeness window as durations.
func (r SearchRequest) Politeness() Politeness {
	return Politeness{
		Min: time.Duration(r.PoliteMinSeconds * float64(time.Second)),
		Max: time.Duration(r.PoliteMaxSeconds * float64(time.Second)),
	}
}

// RawRecord is one candidate extracted from a search results page.
type RawRecord struct {
	ArxivID         string   `json:"arxiv_id"`
	Title           string   `json:"title"`
	Authors         []string `json:"authors"`
	Abstract        string   `json:"abstract"`
	SubmittedDate   string   `json:"submitted_date"`
	AbsURL          string   `json:"abs_url"`
	PDFURL          string   `json:"pdf_url"`
	PrimaryCategory string   `json:"primary_category"`
	AllCategories   []string `json:"all_categories"`
}

// Version is one entry of a paper's submission history.
type Version struct {
	Version string `json:"version"`
	Raw     string `json:"raw"`
}

// EnrichedRecord is a RawRecord plus the detail and content page extractions
// and the audit annotations.
type EnrichedRecord struct {
	RawRecord
	DOI            string    `json:"doi"`
	Versions       []Version `json:"versions"`
	LastUpdatedRaw string    `json:"last_updated_raw"`
	HTMLURL        string    `json:"html_url"`
	Method         string    `json:"method"`
	References     []string  `json:"references"`
	Errors         []string  `json:"errors"`
	MissingFields  []string  `json:"missing_fields"`
	MissingHint    string    `json:"missing_hint"`
}

// NewEnrichedRecord wraps raw with empty, non-nil enrichment collections.
func NewEnrichedRecord(raw RawRecord) EnrichedRecord {
	if raw.Authors == nil {
		raw.Authors = []string{}
	}
	if raw.AllCategories == nil {
		raw.AllCategories = []string{}
	}
	return EnrichedRecord{
		RawRecord:     raw,
		Versions:      []Version{},
		References:    []string{},
		Errors:        []string{},
		MissingFields: []string{},
	}
}

// AnomalySignals flags textual markers of a blocked, challenged or empty page.
type AnomalySignals struct {
	WeAreSorry bool `json:"contains_we_are_sorry"`
	Robot      bool `json:"contains_robot"`
	Captcha    bool `json:"contains_captcha"`
	Consent    bool `json:"contains_consent"`
	NoResults  bool `json:"contains_no_results"`
}

// Blocking reports whether paging must stop without retrying.
func (s AnomalySignals) Blocking() bool {
	return s.WeAreSorry || s.Robot || s.Consent
}

// Any reports whether at least one signal fired.
func (s AnomalySignals) Any() bool {
	return s.Blocking() || s.Captcha || s.NoResults
}

// Names lists the fired signals in a stable order.
func (s AnomalySignals) Names() []string {
	names := make([]string, 0, 5)
	if s.WeAreSorry {
		names = append(names, "we_are_sorry")
	}
	if s.Robot {
		names = append(names, "robot")
	}
	if s.Captcha {
		names = append(names, "captcha")
	}
	if s.Consent {
		names = append(names, "consent")
	}
	if s.NoResults {
		names = append(names, "no_results")
	}
	return names
}

// FallbackModeAbsLinks marks a page parsed from bare detail links.
const FallbackModeAbsLinks = "abs_links"

// PageDiagnostic describes how a fetched search page was interpreted.
type PageDiagnostic struct {
	URL             string         `json:"url"`
	StatusCode      int            `json:"status"`
	PageTitle       string         `json:"page_title"`
	ResultNodeCount int            `json:"selector_count_arxiv_result"`
	HasAbsLinks     bool           `json:"has_abs_links"`
	Signals         AnomalySignals `json:"signals"`
	FallbackMode    string         `json:"fallback_mode"`
}

// RunResult is the aggregate outcome of one pipeline run.
type RunResult struct {
	RunID              string           `json:"run_id"`
	OK                 bool             `json:"ok"`
	Request            SearchRequest    `json:"request"`
	AllowedCategories  []string         `json:"allowed_subcats"`
	CountCollected     int              `json:"count_collected"`
	CountAfterFilter   int              `json:"count_after_theme_filter"`
	Items              []EnrichedRecord `json:"items"`
	Errors             []string         `json:"errors"`
	SupportedFields    []string         `json:"supported_fields"`
	PagesFetched       int              `json:"pages_fetched"`
	LastSearchURL      string           `json:"last_search_url"`
	LastSearchHTTP     int              `json:"last_search_http"`
	ParseDiagLast      *PageDiagnostic  `json:"parse_diag_last"`
	AntiBotOrWeirdPage bool             `json:"anti_bot_or_weird_page"`
	HitLimit           bool             `json:"hit_limit"`
	BundleFile         string           `json:"bundle_html_file"`
	SavedTo            string           `json:"saved_to"`
	StartedAt          time.Time        `json:"started_at"`
	FinishedAt         time.Time        `json:"finished_at"`
}

// PageKind identifies which upstream page a fetch targets.
type PageKind string

// Page kinds fetched by the pipeline.
const (
	PageKindSearch   PageKind = "search"
	PageKindAbstract PageKind = "abs"
	PageKindContent  PageKind = "html"
)

// Politeness is the jitter window enforced between two live requests.
type Politeness struct {
	Min time.Duration
	Max time.Duration
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL        string
	Kind       PageKind
	Politeness Politeness
}

// FetchResponse is the outcome of a fetch. A StatusCode of zero means the
// request never produced an HTTP response and Err carries the cause.
type FetchResponse struct {
	URL          string
	FinalURL     string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	Attempts     int
	FromCache    bool
	UsedHeadless bool
	Err          string
}

// OK reports whether the upstream answered 200.
func (r FetchResponse) OK() bool {
	return r.StatusCode == http.StatusOK
}

// RequestExceptionPrefix starts the synthetic body of a failed request.
const RequestExceptionPrefix = "REQUEST_EXCEPTION: "

// FailedResponse builds the zero-status response for a request that never completed.
func FailedResponse(url string, cause error, attempts int, elapsed time.Duration) FetchResponse {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return FetchResponse{
		URL:      url,
		FinalURL: url,
		Body:     []byte(RequestExceptionPrefix + msg),
		Duration: elapsed,
		Attempts: attempts,
		Err:      msg,
	}
}

// BundlePage is one fetched page retained for the debug bundle.
type BundlePage struct {
	Kind       PageKind
	URL        string
	StatusCode int
	Body       []byte
	Signals    *AnomalySignals
}
