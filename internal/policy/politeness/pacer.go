// Package politeness spaces live upstream requests with a randomized delay.
//
// A single Pacer is shared by every fetch in the process. It admits one live
// request at a time and measures the delay from the moment the previous
// request finished, so a slow response never eats into the idle gap and
// concurrent enrichment workers cannot overlap their requests.
package politeness

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/JakeFAU/paperscout/internal/metrics"
)

// Pacer admits live requests one after another.
type Pacer struct {
	// turn holds a token while an admitted request is in flight.
	turn chan struct{}

	mu     sync.Mutex
	last   time.Time
	now    func() time.Time
	jitter func(limit time.Duration) time.Duration
}

// New returns a Pacer whose first request is never delayed.
func New() *Pacer {
	return &Pacer{
		turn:   make(chan struct{}, 1),
		now:    time.Now,
		jitter: randomJitter,
	}
}

// Wait blocks until the caller may issue its request: the previous request
// has called Done and a gap drawn uniformly from [minDelay, maxDelay] has
// passed since it finished. It returns the time spent in the delay.
//
// Every successful Wait must be paired with exactly one Done. A failed Wait
// leaves the Pacer as it found it.
func (p *Pacer) Wait(ctx context.Context, minDelay, maxDelay time.Duration) (time.Duration, error) {
	select {
	case p.turn <- struct{}{}:
	case <-ctx.Done():
		return 0, fmt.Errorf("politeness wait: %w", ctx.Err())
	}

	wait := p.next(minDelay, maxDelay).Sub(p.now())
	if wait <= 0 {
		return 0, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		<-p.turn
		return 0, fmt.Errorf("politeness wait: %w", ctx.Err())
	case <-timer.C:
	}
	metrics.ObservePolitenessWait(wait)
	return wait, nil
}

// Done records that the admitted request finished at finished and lets the
// next caller in.
func (p *Pacer) Done(finished time.Time) {
	p.mu.Lock()
	if finished.After(p.last) {
		p.last = finished
	}
	p.mu.Unlock()

	select {
	case <-p.turn:
	default:
	}
}

// next returns the earliest start for a request admitted now.
func (p *Pacer) next(minDelay, maxDelay time.Duration) time.Time {
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.last.IsZero() {
		return now
	}
	if earliest := p.last.Add(minDelay + p.jitter(maxDelay-minDelay)); earliest.After(now) {
		return earliest
	}
	return now
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)+1))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
