package flow

import (
	"math"
	"sync/atomic"
	"time"
)

// WarmUpRateLimiterController composes the warm-up token state from
// §4.6c with the leaky-bucket time-domain gate from §4.6b: the per-request
// cost is computed against the warmed-up rate, then queued like a
// RateLimiterController (spec.md §4.6d).
type WarmUpRateLimiterController struct {
	state              *warmUpState
	maxQueueMs         int64
	latestPassedMillis atomic.Int64

	Sleep func(time.Duration)
}

// NewWarmUpRateLimiterController builds the composite controller.
func NewWarmUpRateLimiterController(count float64, warmUpSeconds int64, coldFactor float64, maxQueueMs int64) *WarmUpRateLimiterController {
	return &WarmUpRateLimiterController{
		state:      newWarmUpState(count, warmUpSeconds, coldFactor),
		maxQueueMs: maxQueueMs,
		Sleep:      time.Sleep,
	}
}

// CanPass implements spec.md §4.6d.
func (c *WarmUpRateLimiterController) CanPass(now int64, src StatSource, acquireCount int64, prioritized bool) (bool, error) {
	c.state.syncTokens(now, prevWindowPassQps(src))

	var costMs int64
	if c.state.storedTokens.Load() >= c.state.warningTokens {
		warmingQps := c.state.currentMaxQps()
		costMs = int64(math.Round(1000 * float64(acquireCount) / warmingQps))
	} else {
		costMs = int64(math.Round(1000 * float64(acquireCount) / c.state.count))
	}

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
