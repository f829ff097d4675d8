// Package politeness paces outbound requests against the source site. A
// sequential crawl sleeps a randomized delay before every request and a
// longer one between brands; a concurrent crawl shares a single token-refill
// gate instead, so adding workers never multiplies the request rate.
package politeness

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// DelayKind selects which delay band applies.
type DelayKind int

const (
	// DelayRequest is the pause before an ordinary page fetch.
	DelayRequest DelayKind = iota
	// DelayBrandChange is the longer pause when moving to the next brand.
	DelayBrandChange
)

// brandChangeSpread widens the brand-change delay into a small fixed band so
// consecutive brand switches don't land on the exact same interval.
const brandChangeSpread = 2 * time.Second

// Config holds the delay bands and the retry backoff base.
type Config struct {
	// MinDelay and MaxDelay bound the randomized per-request delay.
	MinDelay time.Duration
	// MaxDelay must be >= MinDelay.
	MaxDelay time.Duration
	// BrandDelay is the lower bound of the between-brands band.
	BrandDelay time.Duration
	// BackoffBase scales the exponential retry backoff. Defaults to one
	// second; tests shrink it.
	BackoffBase time.Duration
}

// Controller computes and applies delays. It has no state beyond its config
// and the optional shared gate, so a single instance may serve many callers.
type Controller struct {
	cfg  Config
	gate *rate.Limiter
}

// NewController creates a sequential-mode controller.
func NewController(cfg Config) *Controller {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	return &Controller{cfg: cfg}
}

// NewSharedController creates a controller whose request pacing is a shared
// token bucket sized from the midpoint of the request band. Workers wait on
// the gate rather than sleeping independently, keeping the aggregate request
// rate inside the configured band.
func NewSharedController(cfg Config) *Controller {
	c := NewController(cfg)
	mid := (c.cfg.MinDelay + c.cfg.MaxDelay) / 2
	if mid <= 0 {
		mid = time.Second
	}
	c.gate = rate.NewLimiter(rate.Every(mid), 1)
	return c
}

// Pace blocks until the caller may issue the next request: a randomized
// sleep in sequential mode, a gate wait in shared mode.
func (c *Controller) Pace(ctx context.Context) error {
	if c.gate != nil {
		return c.gate.Wait(ctx)
	}
	return c.Delay(ctx, DelayRequest)
}

// Delay blocks for a duration drawn uniformly from the band selected by
// kind. It returns early with the context's error on cancellation.
func (c *Controller) Delay(ctx context.Context, kind DelayKind) error {
	var lo, hi time.Duration
	switch kind {
	case DelayBrandChange:
		if c.cfg.BrandDelay <= 0 {
			return ctx.Err()
		}
		lo, hi = c.cfg.BrandDelay, c.cfg.BrandDelay+brandChangeSpread
	default:
		lo, hi = c.cfg.MinDelay, c.cfg.MaxDelay
	}

	d := lo
	if hi > lo {
		d = lo + time.Duration(rand.Int63n(int64(hi-lo)))
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns the wait before retry number attempt (starting at 1),
// doubling each time: base*2, base*4, base*8, ...
func (c *Controller) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return c.cfg.BackoffBase * time.Duration(1<<uint(attempt))
}

// Shared reports whether this controller paces through a shared gate.
func (c *Controller) Shared() bool {
	return c.gate != nil
}
