package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/paperscout/internal/config"
	"github.com/JakeFAU/paperscout/internal/crawler"
)

type fakeRunner struct {
	mu       sync.Mutex
	requests []crawler.SearchRequest
	result   crawler.RunResult
	panics   bool
}

func (f *fakeRunner) Run(_ context.Context, req crawler.SearchRequest) crawler.RunResult {
	if f.panics {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	res := f.result
	res.Request = req
	return res
}

func (f *fakeRunner) Themes() []string {
	return []string{"ai_ml", "algo_ds"}
}

func (f *fakeRunner) last() crawler.SearchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func testConfig() config.Config {
	return config.Config{
		Server:   config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 30},
		Upstream: config.UpstreamConfig{DefaultMaxItems: 20},
		Pipeline: config.PipelineConfig{ContextMaxChars: 12000},
	}
}

func sampleResult() crawler.RunResult {
	rec := crawler.NewEnrichedRecord(crawler.RawRecord{
		ArxivID:  "2401.01234",
		Title:    "Multimodal Transformers",
		Abstract: "We study transformers.",
		AbsURL:   "https://arxiv.org/abs/2401.01234",
	})
	return crawler.RunResult{RunID: "run-1", OK: true, Items: []crawler.EnrichedRecord{rec}, Errors: []string{}}
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Search_Succeeds(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: sampleResult()}
	server := NewServer(runner, testConfig(), zap.NewNop())

	rec := do(t, server, http.MethodPost, "/v1/search",
		`{"query":"  graph neural nets ","theme":"AI_ML","sort":"submitted_date","max_results":7,"polite_min_seconds":0.5,"polite_max_seconds":1,"skip_enrichment":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var got crawler.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Items, 1)

	req := runner.last()
	require.Equal(t, "graph neural nets", req.Query)
	require.Equal(t, "ai_ml", req.Theme)
	require.Equal(t, crawler.SortRecency, req.Sort)
	require.Equal(t, 7, req.MaxResults)
	require.InDelta(t, 0.5, req.PoliteMinSeconds, 1e-9)
	require.InDelta(t, 1.0, req.PoliteMaxSeconds, 1e-9)
	require.True(t, req.SkipEnrichment)
	require.False(t, req.DisableKeywordFilter)
}

func TestServer_Search_DefaultsMaxResults(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: sampleResult()}
	server := NewServer(runner, testConfig(), zap.NewNop())

	rec := do(t, server, http.MethodPost, "/v1/search", `{"query":"q"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 20, runner.last().MaxResults)
	require.Equal(t, crawler.SortRelevance, runner.last().Sort)
}

func TestServer_Search_FailedRunIsStillOK(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: crawler.RunResult{RunID: "r", OK: false, Errors: []string{"SEARCH_HTTP_429"}, Items: []crawler.EnrichedRecord{}}}
	server := NewServer(runner, testConfig(), zap.NewNop())

	rec := do(t, server, http.MethodPost, "/v1/search", `{"query":"q"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "SEARCH_HTTP_429")
}

func TestServer_Search_RejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		body  string
		field string
	}{
		"invalid json":    {body: "{invalid"},
		"unknown field":   {body: `{"query":"q","depth":3}`},
		"missing query":   {body: `{"theme":"ai_ml"}`, field: "query"},
		"blank query":     {body: `{"query":"   "}`, field: "query"},
		"bad sort":        {body: `{"query":"q","sort":"random"}`, field: "sort"},
		"negative cap":    {body: `{"query":"q","max_results":-1}`, field: "max_results"},
		"negative polite": {body: `{"query":"q","polite_min_seconds":-1}`, field: "polite_min_seconds"},
		"unknown theme":   {body: `{"query":"q","theme":"astro"}`, field: "theme"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			runner := &fakeRunner{}
			server := NewServer(runner, testConfig(), zap.NewNop())
			rec := do(t, server, http.MethodPost, "/v1/search", tc.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Zero(t, runner.calls())
			if tc.field != "" {
				var verr ValidationError
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verr))
				require.Contains(t, verr.Errors, tc.field)
			}
		})
	}
}

func TestServer_SearchContext(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: sampleResult()}
	server := NewServer(runner, testConfig(), zap.NewNop())

	rec := do(t, server, http.MethodPost, "/v1/search/context", `{"query":"transformers","question":"What is new?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got contextResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.True(t, strings.HasPrefix(got.Context, "[PAPER 1]\narxiv_id: 2401.01234\n"))
	require.Contains(t, got.Prompt, "QUESTION:\nWhat is new?")
	require.Contains(t, got.Prompt, got.Context)
	require.Equal(t, "transformers", runner.last().Query)

	rec = do(t, server, http.MethodPost, "/v1/search/context", `{"query":"transformers","max_chars":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got = contextResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Empty(t, got.Context)
	require.Empty(t, got.Prompt)
}

func TestServer_ListThemes(t *testing.T) {
	t.Parallel()

	rec := do(t, NewServer(&fakeRunner{}, testConfig(), zap.NewNop()), http.MethodGet, "/v1/themes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"themes":["ai_ml","algo_ds"]}`, rec.Body.String())
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeRunner{}, testConfig(), zap.NewNop())
	require.Equal(t, http.StatusOK, do(t, server, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, do(t, server, http.MethodGet, "/readyz", "").Code)

	rec := do(t, server, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")

	require.Equal(t, http.StatusServiceUnavailable, do(t, NewServer(nil, testConfig(), nil), http.MethodGet, "/readyz", "").Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	server := NewServer(&fakeRunner{result: sampleResult()}, cfg, zap.NewNop())

	require.Equal(t, http.StatusForbidden, do(t, server, http.MethodGet, "/v1/themes", "").Code)
	require.Equal(t, http.StatusOK, do(t, server, http.MethodGet, "/healthz", "").Code, "probes stay open")

	req := httptest.NewRequest(http.MethodGet, "/v1/themes", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusOK, do(t, server, http.MethodGet, "/v1/themes?api_key=secret", "").Code)
}

func TestServer_RecoversFromPanics(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeRunner{panics: true}, testConfig(), zap.NewNop())
	rec := do(t, server, http.MethodPost, "/v1/search", `{"query":"q"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeRunner{}, testConfig(), zap.NewNop())
	rec := do(t, server, http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestValidationErrorMessage(t *testing.T) {
	t.Parallel()

	err := NewValidator().Validate(&searchRequest{MaxResults: -2})
	require.Error(t, err)
	require.Equal(t, "validation failed: max_results: max_results must be at least 0, query: query is required", err.Error())
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NotNil(t, buf)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
}

func TestResponseWriterRecordsStatus(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	rw.WriteHeader(http.StatusTeapot)
	n, err := rw.Write([]byte("hi"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, http.StatusTeapot, rw.status)
	rw.Flush()
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
