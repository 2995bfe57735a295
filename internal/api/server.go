// Package api exposes the HTTP interface for the search pipeline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/paperscout/internal/config"
	"github.com/JakeFAU/paperscout/internal/crawler"
	"github.com/JakeFAU/paperscout/internal/metrics"
	"github.com/JakeFAU/paperscout/internal/prompt"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Runner executes searches.
type Runner interface {
	Run(ctx context.Context, req crawler.SearchRequest) crawler.RunResult
	Themes() []string
}

// Server wires HTTP handlers to the pipeline.
type Server struct {
	router    chi.Router
	runner    Runner
	validator *Validator
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		runner:    runner,
		validator: NewValidator(),
		cfg:       cfg,
		logger:    logger,
	}

	timeout := time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/themes", s.listThemes)
		r.Post("/search", s.search)
		r.Post("/search/context", s.searchContext)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listThemes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"themes": s.runner.Themes()})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if !s.decode(w, r, &body) {
		return
	}
	result := s.runner.Run(r.Context(), s.toSearchRequest(body))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) searchContext(w http.ResponseWriter, r *http.Request) {
	var body contextRequest
	if !s.decode(w, r, &body) {
		return
	}
	result := s.runner.Run(r.Context(), s.toSearchRequest(body.searchRequest))

	maxChars := body.MaxChars
	if maxChars == 0 {
		maxChars = s.cfg.Pipeline.ContextMaxChars
	}
	resp := contextResponse{
		Result:  result,
		Context: prompt.BuildContext(result.Items, maxChars),
	}
	if q := strings.TrimSpace(body.Question); q != "" {
		resp.Prompt = prompt.BuildStrictPrompt(q, resp.Context)
	}
	writeJSON(w, http.StatusOK, resp)
}

// decode reads and validates a JSON body, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst normalizer) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	dst.normalize()
	if err := s.validator.Validate(dst); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, verr)
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if theme := dst.theme(); theme != "" && !s.knownTheme(theme) {
		writeJSON(w, http.StatusBadRequest, &ValidationError{Errors: map[string]string{"theme": "theme must be one of " + strings.Join(s.runner.Themes(), ", ")}})
		return false
	}
	return true
}

func (s *Server) knownTheme(theme string) bool {
	for _, name := range s.runner.Themes() {
		if strings.EqualFold(name, theme) {
			return true
		}
	}
	return false
}

func (s *Server) toSearchRequest(body searchRequest) crawler.SearchRequest {
	maxResults := body.MaxResults
	if maxResults == 0 {
		maxResults = s.cfg.Upstream.DefaultMaxItems
	}
	return crawler.SearchRequest{
		Query:                body.Query,
		Theme:                body.Theme,
		Sort:                 crawler.ParseSortMode(body.Sort),
		MaxResults:           maxResults,
		PoliteMinSeconds:     body.PoliteMinSeconds,
		PoliteMaxSeconds:     body.PoliteMaxSeconds,
		SkipEnrichment:       body.SkipEnrichment,
		DisableKeywordFilter: body.DisableKeywordFilter,
	}
}

type normalizer interface {
	normalize()
	theme() string
}

type searchRequest struct {
	Query                string  `json:"query" validate:"required,max=500"`
	Theme                string  `json:"theme" validate:"omitempty,max=64"`
	Sort                 string  `json:"sort" validate:"omitempty,oneof=relevance recency submitted_date submitted recent"`
	MaxResults           int     `json:"max_results" validate:"gte=0"`
	PoliteMinSeconds     float64 `json:"polite_min_seconds" validate:"gte=0,lte=60"`
	PoliteMaxSeconds     float64 `json:"polite_max_seconds" validate:"gte=0,lte=60"`
	SkipEnrichment       bool    `json:"skip_enrichment"`
	DisableKeywordFilter bool    `json:"disable_keyword_filter"`
}

func (r *searchRequest) normalize() {
	r.Query = strings.TrimSpace(r.Query)
	r.Theme = strings.ToLower(strings.TrimSpace(r.Theme))
	r.Sort = strings.ToLower(strings.TrimSpace(r.Sort))
}

func (r *searchRequest) theme() string { return r.Theme }

type contextRequest struct {
	searchRequest
	Question string `json:"question" validate:"max=2000"`
	MaxChars int    `json:"max_chars" validate:"gte=0"`
}

type contextResponse struct {
	Result  crawler.RunResult `json:"result"`
	Context string            `json:"context"`
	Prompt  string            `json:"prompt,omitempty"`
}
