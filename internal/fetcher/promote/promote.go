// Package promote wraps a plain fetcher so that responses which look like a
// JavaScript shell are re-fetched with a headless browser.
package promote

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/paperscout/internal/crawler"
	"github.com/JakeFAU/paperscout/internal/metrics"
)

// Fetcher probes with the primary fetcher and promotes to the headless one
// when the detector asks for it.
type Fetcher struct {
	probe    crawler.Fetcher
	headless crawler.Fetcher
	detector crawler.HeadlessDetector
	logger   *zap.Logger
}

// New returns a promoting fetcher. With a nil headless fetcher or detector it
// behaves exactly like probe.
func New(probe, headless crawler.Fetcher, detector crawler.HeadlessDetector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{probe: probe, headless: headless, detector: detector, logger: logger}
}

// Fetch implements crawler.Fetcher. The headless response replaces the probe
// only when it answered 200.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) crawler.FetchResponse {
	resp := f.probe.Fetch(ctx, request)
	if f.headless == nil || f.detector == nil || !f.detector.ShouldPromote(resp) {
		return resp
	}

	rendered := f.headless.Fetch(ctx, request)
	if !rendered.OK() {
		metrics.ObserveHeadlessPromotion("failed")
		f.logger.Warn("headless promotion failed",
			zap.String("url", request.URL),
			zap.Int("status", rendered.StatusCode),
			zap.String("error", rendered.Err),
		)
		return resp
	}
	metrics.ObserveHeadlessPromotion("applied")
	f.logger.Info("headless promotion applied", zap.String("url", request.URL))
	rendered.Attempts += resp.Attempts
	rendered.Duration += resp.Duration
	rendered.UsedHeadless = true
	return rendered
}
