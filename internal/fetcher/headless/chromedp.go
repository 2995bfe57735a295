// Package headless renders pages in headless Chrome for responses that the
// plain fetcher only sees as a JavaScript shell.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/paperscout/internal/crawler"
)

const defaultNavTimeout = 45 * time.Second

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	AcceptLanguage    string
	NavigationTimeout time.Duration
	// Throttle, when set, runs before every navigation so rendered fetches
	// share the plain fetcher's request budget. The returned release is
	// called once the navigation has finished.
	Throttle func(ctx context.Context, request crawler.FetchRequest) (release func(), err error)
}

// Fetcher implements crawler.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	slots       chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	var slots chan struct{}
	if cfg.MaxParallel > 0 {
		slots = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		slots:       slots,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates with a headless browser and returns the rendered DOM.
// Failures are reported as a zero-status response.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) crawler.FetchResponse {
	start := time.Now()
	if err := f.acquire(ctx); err != nil {
		return failed(request.URL, err, start)
	}
	defer f.releaseSlot()
	if f.cfg.Throttle != nil {
		done, err := f.cfg.Throttle(ctx, request)
		if err != nil {
			return failed(request.URL, err, start)
		}
		defer done()
	}

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, f.navTimeout())
	defer cancel()
	// The browser context is rooted in the allocator, so cancellation of the
	// caller's context has to be forwarded by hand.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var status atomic.Int64
	chromedp.ListenTarget(taskCtx, func(ev any) {
		if resp, ok := ev.(*network.EventResponseReceived); ok {
			recordDocumentStatus(&status, resp)
		}
	})

	var html, finalURL string
	if err := chromedp.Run(taskCtx,
		f.setup(),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return failed(request.URL, fmt.Errorf("chromedp run: %w", err), start)
	}

	code := int(status.Load())
	if code == 0 {
		code = http.StatusOK
	}
	if finalURL == "" {
		finalURL = request.URL
	}
	return crawler.FetchResponse{
		URL:          request.URL,
		FinalURL:     finalURL,
		StatusCode:   code,
		Headers:      http.Header{},
		Body:         []byte(html),
		Duration:     time.Since(start),
		Attempts:     1,
		UsedHeadless: true,
	}
}

// recordDocumentStatus keeps the status of the last top-level document.
func recordDocumentStatus(status *atomic.Int64, ev *network.EventResponseReceived) {
	if ev.Type != network.ResourceTypeDocument || ev.Response == nil {
		return
	}
	status.Store(ev.Response.Status)
}

func failed(url string, err error, start time.Time) crawler.FetchResponse {
	resp := crawler.FailedResponse(url, err, 1, time.Since(start))
	resp.UsedHeadless = true
	return resp
}

// setup applies the configured user agent and Accept-Language to the tab.
func (f *Fetcher) setup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if f.cfg.AcceptLanguage != "" {
			headers := network.Headers{"Accept-Language": f.cfg.AcceptLanguage}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.slots == nil {
		return nil
	}
	select {
	case f.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) releaseSlot() {
	if f.slots == nil {
		return
	}
	<-f.slots
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}
