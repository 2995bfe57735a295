package headless

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/paperscout/internal/crawler"
)

// ErrNotConfigured is reported when headless rendering is disabled.
var ErrNotConfigured = errors.New("headless fetcher not configured")

// Noop implements crawler.Fetcher but always reports a failed fetch,
// which leaves the probe response in place.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch returns a zero-status response carrying ErrNotConfigured.
func (Noop) Fetch(_ context.Context, request crawler.FetchRequest) crawler.FetchResponse {
	resp := crawler.FailedResponse(request.URL, ErrNotConfigured, 0, time.Duration(0))
	resp.UsedHeadless = true
	return resp
}
