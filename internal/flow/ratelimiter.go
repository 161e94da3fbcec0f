package flow

import (
	"math"
	"sync/atomic"
	"time"
)

// RateLimiterController is the leaky-bucket pacing controller (spec.md
// §4.6b): it smooths the arrival rate to count req/s by spacing admitted
// requests costMs apart, queueing (sleeping) callers up to maxQueueMs
// rather than rejecting them outright.
type RateLimiterController struct {
	count      float64
	maxQueueMs int64

	latestPassedMillis atomic.Int64

	// Sleep is overridable in tests.
	Sleep func(time.Duration)
}

// NewRateLimiterController builds a RateLimiterController admitting at
// most count requests/second with a head-of-line wait capped at
// maxQueueMs.
func NewRateLimiterController(count float64, maxQueueMs int64) *RateLimiterController {
	c := &RateLimiterController{count: count, maxQueueMs: maxQueueMs, Sleep: time.Sleep}
	// Start far in the past so the first request is admitted without waiting.
	c.latestPassedMillis.Store(math.MinInt64 / 2)
	return c
}

// CanPass implements spec.md §4.6b's speculative-advance-then-rollback
// algorithm.
func (c *RateLimiterController) CanPass(now int64, src StatSource, acquireCount int64, prioritized bool) (bool, error) {
	if c.count <= 0 {
		return true, nil
	}
	costMs := int64(math.Round(1000 * float64(acquireCount) / c.count))

	latest := c.latestPassedMillis.Load()
	expected := latest + costMs
	if expected <= now {
		c.latestPassedMillis.Store(now)
		return true, nil
	}

	waitMs := expected - now
	if waitMs > c.maxQueueMs {
		return false, nil
	}

	newLatest := c.latestPassedMillis.Add(costMs)
	waitMs = newLatest - now
	if waitMs > c.maxQueueMs {
		c.latestPassedMillis.Add(-costMs)
		return false, nil
	}
	if waitMs > 0 && c.Sleep != nil {
		c.Sleep(time.Duration(waitMs) * time.Millisecond)
	}
	return true, nil
}
