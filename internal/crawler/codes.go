package crawler

import "fmt"

// Run-level error codes.
const (
	ErrCodeAntiBot         = "ANTI_BOT_OR_WEIRD_PAGE"
	ErrCodeNoResultsParsed = "NO_RESULTS_PARSED"
	ErrCodeCanceled        = "CANCELED"
	ErrCodeArtifactWrite   = "ARTIFACT_WRITE_FAILED"
	ErrCodeEmptyQuery      = "EMPTY_QUERY"
)

// SearchHTTPCode is recorded when a search page answers with a non-200 status.
func SearchHTTPCode(status int) string {
	return fmt.Sprintf("SEARCH_HTTP_%d", status)
}

// StageHTTPCode is recorded on a record when its detail or content page fails.
func StageHTTPCode(kind PageKind, status int) string {
	return fmt.Sprintf("%s_http_%d", kind, status)
}
