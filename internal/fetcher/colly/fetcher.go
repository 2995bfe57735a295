// Package collyfetcher implements crawler.Fetcher using gocolly.
//
// Every live request passes the shared token bucket and the shared politeness
// pacer first. Transient upstream statuses are retried with a linear backoff,
// and successful pages are kept in a short-lived LRU cache.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/JakeFAU/paperscout/internal/crawler"
	"github.com/JakeFAU/paperscout/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	AcceptLanguage string
	RespectRobots  bool
	Timeout        time.Duration
	MaxRetries     int
	Backoff        time.Duration
	MaxBodySize    int
	CacheSize      int
	CacheTTL       time.Duration
}

// RateLimiter blocks until a request to rawURL may proceed.
type RateLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Pacer blocks until the politeness delay since the previous live request
// finished has passed. Done reports when an admitted request finished.
type Pacer interface {
	Wait(ctx context.Context, minDelay, maxDelay time.Duration) (time.Duration, error)
	Done(finished time.Time)
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithRateLimiter sets the shared token bucket.
func WithRateLimiter(l RateLimiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithPacer sets the shared politeness pacer.
func WithPacer(p Pacer) Option {
	return func(f *Fetcher) { f.pacer = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) { f.transport = rt }
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	limiter       RateLimiter
	pacer         Pacer
	cache         *expirable.LRU[string, crawler.FetchResponse]
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

var transientStatuses = map[int]struct{}{
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	metrics.Init()
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	f := &Fetcher{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	if f.transport == nil {
		f.transport = newHTTPTransport()
	}

	// Clones share the backend, so the transport and timeout are set once here.
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	c.WithTransport(&robotsAwareTransport{base: f.transport})
	c.SetRequestTimeout(cfg.Timeout)
	f.baseCollector = c

	if cfg.CacheSize > 0 {
		f.cache = expirable.NewLRU[string, crawler.FetchResponse](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return f
}

// Fetch retrieves request.URL. It never returns an error: transport failures
// and cancellation surface as a zero status with the cause in the body.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) crawler.FetchResponse {
	start := time.Now()
	kind := string(request.Kind)
	key := cacheKey(request.URL)

	if f.cache != nil {
		if cached, ok := f.cache.Get(key); ok {
			metrics.ObserveCacheHit(kind)
			cached.FromCache = true
			cached.Attempts = 0
			cached.Duration = time.Since(start)
			return cached
		}
	}

	var (
		resp     crawler.FetchResponse
		attempts int
	)
	for attempt := 0; ; attempt++ {
		release, err := f.Throttle(ctx, request)
		if err != nil {
			if attempts > 0 {
				break
			}
			return crawler.FailedResponse(request.URL, err, attempts, time.Since(start))
		}
		attempts++
		resp = f.visit(ctx, request)
		release()
		metrics.ObserveFetch(kind, resp.StatusCode, request.URL, len(resp.Body))

		if _, transient := transientStatuses[resp.StatusCode]; !transient || attempt >= f.cfg.MaxRetries {
			break
		}
		metrics.ObserveRetry(kind)
		backoff := time.Duration(attempt+1) * f.cfg.Backoff
		f.logger.Warn("transient upstream status, retrying",
			zap.String("url", request.URL),
			zap.String("kind", kind),
			zap.Int("status", resp.StatusCode),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", backoff),
		)
		if err := crawler.Sleep(ctx, backoff); err != nil {
			break
		}
	}

	resp.Attempts = attempts
	resp.Duration = time.Since(start)
	metrics.ObserveFetchDuration(kind, resp.Duration)
	if resp.OK() && f.cache != nil {
		f.cache.Add(key, resp)
	}
	return resp
}

// Throttle waits for the shared token bucket and politeness pacer. Other
// fetchers that reach the same upstream call it to share the budget. On
// success the caller must invoke release once its request has finished so the
// next politeness delay counts from that moment.
func (f *Fetcher) Throttle(ctx context.Context, request crawler.FetchRequest) (func(), error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, request.URL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	if f.pacer == nil {
		return func() {}, nil
	}
	if _, err := f.pacer.Wait(ctx, request.Politeness.Min, request.Politeness.Max); err != nil {
		return nil, fmt.Errorf("politeness: %w", err)
	}
	var once sync.Once
	return func() { once.Do(func() { f.pacer.Done(time.Now()) }) }, nil
}

// visit performs a single attempt.
func (f *Fetcher) visit(ctx context.Context, request crawler.FetchRequest) crawler.FetchResponse {
	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx)
	f.configureCollectorHooks(collector, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return crawler.FailedResponse(request.URL, err, 1, time.Since(start))
	}
	result.URL = request.URL
	return result
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		if f.cfg.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		finalURL := ""
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = crawler.FetchResponse{
			FinalURL:   finalURL,
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func cacheKey(rawURL string) string {
	if normalized, err := crawler.NormalizeURL(rawURL); err == nil {
		return normalized
	}
	return rawURL
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
