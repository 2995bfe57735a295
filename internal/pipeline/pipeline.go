// Package pipeline runs one search through paging, filtering, enrichment,
// auditing and persistence, and reports the outcome as a RunResult.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/paperscout/internal/artifact"
	"github.com/JakeFAU/paperscout/internal/audit"
	"github.com/JakeFAU/paperscout/internal/crawler"
	"github.com/JakeFAU/paperscout/internal/enrich"
	"github.com/JakeFAU/paperscout/internal/filter"
	"github.com/JakeFAU/paperscout/internal/metrics"
	"github.com/JakeFAU/paperscout/internal/parser"
)

// DefaultHardLimit caps MaxResults when Config.HardLimit is unset.
const DefaultHardLimit = 100

// Config tunes the orchestrator.
type Config struct {
	HardLimit         int
	MaxStartOffset    int
	EnrichConcurrency int
	RunTimeout        time.Duration
	DefaultPoliteness crawler.Politeness
	Topic             string
}

// Orchestrator owns a run's state. Stages only ever see their own inputs; the
// collected records are never shared with enrichment workers by reference.
type Orchestrator struct {
	fetcher   crawler.Fetcher
	parser    *parser.Parser
	filter    *filter.Filter
	enricher  *enrich.Enricher
	artifacts *artifact.Writer
	publisher crawler.Publisher
	clock     crawler.Clock
	ids       crawler.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator. artifacts and publisher may be nil.
func New(
	fetcher crawler.Fetcher,
	p *parser.Parser,
	f *filter.Filter,
	enricher *enrich.Enricher,
	artifacts *artifact.Writer,
	publisher crawler.Publisher,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HardLimit <= 0 {
		cfg.HardLimit = DefaultHardLimit
	}
	if cfg.EnrichConcurrency <= 0 {
		cfg.EnrichConcurrency = 1
	}
	metrics.Init()
	return &Orchestrator{
		fetcher:   fetcher,
		parser:    p,
		filter:    f,
		enricher:  enricher,
		artifacts: artifacts,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
	}
}

// Themes lists the configured theme names.
func (o *Orchestrator) Themes() []string {
	return o.filter.Themes()
}

// Run executes one search. It never fails: every problem is reported in the
// returned RunResult, which is always well formed.
func (o *Orchestrator) Run(ctx context.Context, req crawler.SearchRequest) crawler.RunResult {
	started := o.clock.Now()
	runID, err := o.ids.NewID()
	if err != nil {
		o.logger.Error("generate run id failed", zap.Error(err))
		runID = fmt.Sprintf("run-%d", started.UnixNano())
	}
	logger := o.logger.With(zap.String("run_id", runID))

	runCtx := ctx
	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	req = req.Normalize(o.cfg.HardLimit)
	result := crawler.RunResult{
		RunID:             runID,
		OK:                true,
		Request:           req,
		AllowedCategories: o.filter.AllowedCategories(req.Theme),
		Items:             []crawler.EnrichedRecord{},
		Errors:            []string{},
		SupportedFields:   append([]string{}, audit.Fields...),
		StartedAt:         started,
	}
	var pages []crawler.BundlePage

	if req.Query == "" {
		addError(&result, crawler.ErrCodeEmptyQuery)
		logger.Warn("empty query")
	} else {
		politeness := o.politeness(req)
		logger.Info("paging",
			zap.String("query", req.Query),
			zap.String("theme", req.Theme),
			zap.String("sort", string(req.Sort)),
			zap.Int("max_results", req.MaxResults),
		)
		collected, searchPages := o.page(runCtx, req, politeness, &result, logger)
		pages = append(pages, searchPages...)

		logger.Info("filtering", zap.Int("collected", len(collected)))
		filtered := o.filter.Apply(collected, req.Theme, !req.DisableKeywordFilter)
		result.AllowedCategories = filtered.Allowed
		result.CountCollected = len(collected)
		result.CountAfterFilter = len(filtered.Records)
		metrics.ObserveRecords("collected", len(collected))
		metrics.ObserveRecords("filtered", len(filtered.Records))

		logger.Info("enriching",
			zap.Int("records", len(filtered.Records)),
			zap.Bool("skip", req.SkipEnrichment),
		)
		items, enrichPages := o.enrich(runCtx, filtered.Records, req.SkipEnrichment, politeness)
		pages = append(pages, enrichPages...)
		if !req.SkipEnrichment {
			metrics.ObserveRecords("enriched", len(items))
		}

		logger.Info("auditing", zap.Int("records", len(items)))
		for i := range items {
			audit.Apply(&items[i])
		}
		result.Items = items
	}

	if runCtx.Err() != nil {
		addError(&result, crawler.ErrCodeCanceled)
		logger.Warn("run interrupted", zap.Error(runCtx.Err()))
	}
	result.FinishedAt = o.clock.Now()

	// Persistence and notification still happen after cancellation so the
	// caller gets the partial result on disk.
	persistCtx := context.WithoutCancel(ctx)
	if o.artifacts != nil {
		if err := o.artifacts.Persist(persistCtx, &result, pages); err != nil {
			logger.Error("persist artifacts failed", zap.Error(err))
		}
	}
	o.publish(persistCtx, result, logger)

	outcome := "ok"
	if !result.OK {
		outcome = "failed"
	}
	metrics.ObserveRun(outcome, result.FinishedAt.Sub(started))
	logger.Info("run finished",
		zap.Bool("ok", result.OK),
		zap.Strings("errors", result.Errors),
		zap.Int("items", len(result.Items)),
		zap.String("saved_to", result.SavedTo),
	)
	return result
}

// politeness picks the request's jitter window, or the configured default
// when the request leaves both bounds at zero.
func (o *Orchestrator) politeness(req crawler.SearchRequest) crawler.Politeness {
	if req.PoliteMinSeconds == 0 && req.PoliteMaxSeconds == 0 {
		return o.cfg.DefaultPoliteness
	}
	return req.Politeness()
}

// page fetches result pages sequentially until the cap, the last page, an
// upstream failure or a blocking signal.
func (o *Orchestrator) page(
	ctx context.Context,
	req crawler.SearchRequest,
	politeness crawler.Politeness,
	result *crawler.RunResult,
	logger *zap.Logger,
) ([]crawler.RawRecord, []crawler.BundlePage) {
	pageSize := o.parser.PageSize()
	collected := make([]crawler.RawRecord, 0, req.MaxResults)
	seen := make(map[string]struct{}, req.MaxResults)
	var pages []crawler.BundlePage

	for start := 0; len(collected) < req.MaxResults; start += pageSize {
		if o.cfg.MaxStartOffset > 0 && start > o.cfg.MaxStartOffset {
			logger.Info("start offset limit reached", zap.Int("start", start))
			break
		}
		if ctx.Err() != nil {
			break
		}

		url := o.parser.SearchURL(req.Query, start, req.Sort)
		resp := o.fetcher.Fetch(ctx, crawler.FetchRequest{URL: url, Kind: crawler.PageKindSearch, Politeness: politeness})
		result.PagesFetched++
		result.LastSearchURL = url
		result.LastSearchHTTP = resp.StatusCode
		page := crawler.BundlePage{Kind: crawler.PageKindSearch, URL: url, StatusCode: resp.StatusCode, Body: resp.Body}

		if !resp.OK() {
			pages = append(pages, page)
			if ctx.Err() != nil {
				break
			}
			addError(result, crawler.SearchHTTPCode(resp.StatusCode))
			logger.Warn("search page failed",
				zap.String("url", url),
				zap.Int("status", resp.StatusCode),
				zap.String("error", resp.Err),
			)
			break
		}

		records, diag := o.parser.ParseSearchPage(url, resp.StatusCode, resp.Body)
		result.ParseDiagLast = &diag
		signals := diag.Signals
		page.Signals = &signals
		pages = append(pages, page)
		for _, name := range diag.Signals.Names() {
			metrics.ObserveAnomalySignal(name)
		}

		if diag.Signals.Blocking() {
			result.AntiBotOrWeirdPage = true
			addError(result, crawler.ErrCodeAntiBot)
			logger.Warn("blocking page detected",
				zap.String("url", url),
				zap.Strings("signals", diag.Signals.Names()),
				zap.String("title", diag.PageTitle),
			)
			break
		}
		if len(records) == 0 {
			if diag.Signals.NoResults {
				logger.Info("upstream reported no results", zap.String("url", url))
				break
			}
			addError(result, crawler.ErrCodeNoResultsParsed)
			logger.Warn("no records parsed",
				zap.String("url", url),
				zap.Int("result_nodes", diag.ResultNodeCount),
				zap.Bool("has_abs_links", diag.HasAbsLinks),
			)
			break
		}
		if diag.FallbackMode != "" {
			logger.Warn("fallback extraction used",
				zap.String("url", url),
				zap.String("mode", diag.FallbackMode),
				zap.Int("records", len(records)),
			)
		}

		for _, rec := range records {
			if rec.ArxivID != "" {
				if _, dup := seen[rec.ArxivID]; dup {
					continue
				}
				seen[rec.ArxivID] = struct{}{}
			}
			collected = append(collected, rec)
			if len(collected) >= req.MaxResults {
				result.HitLimit = true
				break
			}
		}
		logger.Debug("search page parsed",
			zap.String("url", url),
			zap.Int("records", len(records)),
			zap.Int("collected", len(collected)),
		)
		if len(records) < pageSize {
			break
		}
	}
	return collected, pages
}

// enrich runs the detail stages over records on a bounded pool. Each worker
// writes only its own slot; results keep the input order.
func (o *Orchestrator) enrich(
	ctx context.Context,
	records []crawler.RawRecord,
	skip bool,
	politeness crawler.Politeness,
) ([]crawler.EnrichedRecord, []crawler.BundlePage) {
	items := make([]crawler.EnrichedRecord, len(records))
	if skip || o.enricher == nil {
		for i, raw := range records {
			items[i] = crawler.NewEnrichedRecord(raw)
		}
		return items, nil
	}

	pageSets := make([][]crawler.BundlePage, len(records))
	var g errgroup.Group
	g.SetLimit(o.cfg.EnrichConcurrency)
	for i, raw := range records {
		g.Go(func() error {
			if ctx.Err() != nil {
				items[i] = crawler.NewEnrichedRecord(raw)
				return nil
			}
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			res := o.enricher.Enrich(ctx, raw, politeness)
			items[i] = res.Record
			pageSets[i] = res.Pages
			return nil
		})
	}
	_ = g.Wait()

	var pages []crawler.BundlePage
	for _, set := range pageSets {
		pages = append(pages, set...)
	}
	return items, pages
}

func (o *Orchestrator) publish(ctx context.Context, result crawler.RunResult, logger *zap.Logger) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	event := NewRunEvent(result)
	id, err := o.publisher.Publish(ctx, o.cfg.Topic, event)
	if err != nil {
		metrics.ObserveRunEventPublishFailure()
		logger.Error("publish run event failed", zap.String("topic", o.cfg.Topic), zap.Error(err))
		return
	}
	logger.Info("run event published", zap.String("topic", o.cfg.Topic), zap.String("message_id", id))
}

func addError(result *crawler.RunResult, code string) {
	result.OK = false
	for _, existing := range result.Errors {
		if existing == code {
			return
		}
	}
	result.Errors = append(result.Errors, code)
}
