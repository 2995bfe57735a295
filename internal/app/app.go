// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paperscout/internal/anomaly"
	"github.com/JakeFAU/paperscout/internal/artifact"
	"github.com/JakeFAU/paperscout/internal/clock/system"
	"github.com/JakeFAU/paperscout/internal/config"
	"github.com/JakeFAU/paperscout/internal/crawler"
	"github.com/JakeFAU/paperscout/internal/enrich"
	collyfetcher "github.com/JakeFAU/paperscout/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/paperscout/internal/fetcher/headless"
	"github.com/JakeFAU/paperscout/internal/fetcher/promote"
	"github.com/JakeFAU/paperscout/internal/filter"
	"github.com/JakeFAU/paperscout/internal/hash/sha256"
	"github.com/JakeFAU/paperscout/internal/headless/detector"
	"github.com/JakeFAU/paperscout/internal/id/uuid"
	"github.com/JakeFAU/paperscout/internal/metrics"
	"github.com/JakeFAU/paperscout/internal/parser"
	"github.com/JakeFAU/paperscout/internal/pipeline"
	"github.com/JakeFAU/paperscout/internal/policy/politeness"
	"github.com/JakeFAU/paperscout/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/paperscout/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/paperscout/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/paperscout/internal/storage/gcs"
	localstorage "github.com/JakeFAU/paperscout/internal/storage/local"
	memorystorage "github.com/JakeFAU/paperscout/internal/storage/memory"
)

// App holds the shared, long-lived services for the application. It is built
// once at startup and handed to the CLI commands.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	orchestrator *pipeline.Orchestrator
	blobStore    crawler.BlobStore
	publisher    crawler.Publisher
	headless     *headlessfetcher.Fetcher
	closers      []func() error
}

// New builds every dependency described by cfg. It fails fast when a backend
// cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}
	a.logger.Info("building application dependencies")

	var err error
	a.blobStore, err = a.setupStorage(ctx)
	if err != nil {
		return nil, err
	}
	a.publisher, err = a.setupPublisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetcher := a.setupFetcher()
	p := parser.New(parser.Config{
		BaseURL:    cfg.Upstream.BaseURL,
		SearchPath: cfg.Upstream.SearchPath,
		PageSize:   cfg.Upstream.PageSize,
		Detector:   anomaly.New(cfg.Anomaly),
	})
	themes := filter.New(cfg.Themes)
	enricher := enrich.New(fetcher, p, logger.Named("enrich"))
	writer := artifact.New(a.blobStore, sha256.New(), artifact.Config{
		Prefix:    cfg.Storage.Prefix,
		PageBytes: cfg.Storage.BundlePageBytes,
	}, logger.Named("artifact"))

	minDelay, maxDelay := cfg.DefaultPoliteness()
	pipelineCfg := pipeline.Config{
		HardLimit:         cfg.Upstream.HardLimit,
		MaxStartOffset:    cfg.Upstream.MaxStartOffset,
		EnrichConcurrency: cfg.Pipeline.EnrichConcurrency,
		RunTimeout:        cfg.RunTimeout(),
		DefaultPoliteness: crawler.Politeness{Min: minDelay, Max: maxDelay},
	}
	if a.cfg.PubSub.Backend != "none" {
		pipelineCfg.Topic = cfg.PubSub.TopicName
	}
	a.logger.Info("pipeline config",
		zap.Int("hard_limit", pipelineCfg.HardLimit),
		zap.Int("max_start_offset", pipelineCfg.MaxStartOffset),
		zap.Int("enrich_concurrency", pipelineCfg.EnrichConcurrency),
		zap.Duration("run_timeout", pipelineCfg.RunTimeout),
		zap.String("topic", pipelineCfg.Topic),
	)

	a.orchestrator = pipeline.New(
		fetcher,
		p,
		themes,
		enricher,
		writer,
		a.publisher,
		system.New(),
		uuid.New(),
		pipelineCfg,
		logger.Named("pipeline"),
	)
	a.logger.Info("application services initialized")
	return a, nil
}

// Orchestrator returns the pipeline that executes searches.
func (a *App) Orchestrator() *pipeline.Orchestrator {
	return a.orchestrator
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// BlobStore exposes the artifact store.
func (a *App) BlobStore() crawler.BlobStore {
	return a.blobStore
}

// Publisher exposes the run event publisher; nil when events are disabled.
func (a *App) Publisher() crawler.Publisher {
	return a.publisher
}

// Close shuts down the browser and every client opened by New.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	if a.headless != nil {
		a.headless.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) setupStorage(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		store, closeFn, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.closers = append(a.closers, closeFn)
		return store, nil
	case "local":
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.BaseDir))
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return store, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	switch a.cfg.PubSub.Backend {
	case "pubsub":
		pub, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.TopicName),
		)
		return pub, nil
	case "memory":
		a.logger.Info("using in-memory publisher")
		return memorypublisher.New(), nil
	default:
		a.logger.Info("run events disabled")
		return nil, nil
	}
}

// setupFetcher builds the probe fetcher and, when enabled, wraps it with the
// headless promotion path. Both share one token bucket and one pacer.
func (a *App) setupFetcher() crawler.Fetcher {
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Politeness.MaxRPS,
		DefaultBurst: a.cfg.Politeness.Burst,
	})
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:      a.cfg.HTTP.UserAgent,
		AcceptLanguage: a.cfg.HTTP.AcceptLanguage,
		RespectRobots:  a.cfg.HTTP.RespectRobots,
		Timeout:        a.cfg.RequestTimeout(),
		MaxRetries:     a.cfg.HTTP.MaxRetries,
		Backoff:        time.Duration(a.cfg.HTTP.BackoffMs) * time.Millisecond,
		MaxBodySize:    a.cfg.HTTP.MaxBodyBytes,
		CacheSize:      a.cfg.HTTP.CacheSize,
		CacheTTL:       time.Duration(a.cfg.HTTP.CacheTTLSeconds) * time.Second,
	},
		collyfetcher.WithRateLimiter(limiter),
		collyfetcher.WithPacer(politeness.New()),
		collyfetcher.WithLogger(a.logger.Named("fetcher")),
	)
	a.logger.Info("using colly probe fetcher",
		zap.String("user_agent", a.cfg.HTTP.UserAgent),
		zap.Bool("respect_robots", a.cfg.HTTP.RespectRobots),
	)
	if !a.cfg.Headless.Enabled {
		return probe
	}

	var rendered crawler.Fetcher
	chrome, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       a.cfg.Headless.MaxParallel,
		UserAgent:         a.cfg.HTTP.UserAgent,
		AcceptLanguage:    a.cfg.HTTP.AcceptLanguage,
		NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
		Throttle:          probe.Throttle,
	})
	if err != nil {
		// Every promotion then fails and keeps the probe response.
		a.logger.Warn("headless fetcher init failed", zap.Error(err))
		rendered = headlessfetcher.NewNoop()
	} else {
		a.headless = chrome
		rendered = chrome
		a.logger.Info("using headless fetcher", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
	}
	return promote.New(
		probe,
		rendered,
		detector.NewHeuristic(a.cfg.Headless.PromotionThresh),
		a.logger.Named("promote"),
	)
}
