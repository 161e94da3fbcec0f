package flow

import (
	"math"
	"sync/atomic"
)

// warmUpState is the shared storedTokens/lastFillMillis bucket used by
// both the plain warm-up controller and the warm-up+pacing composite
// (spec.md §4.6c/d).
type warmUpState struct {
	count         float64
	warmUpSeconds int64
	coldFactor    float64

	warningTokens int64
	maxTokens     int64
	slope         float64

	storedTokens   atomic.Int64
	lastFillMillis atomic.Int64
}

func newWarmUpState(count float64, warmUpSeconds int64, coldFactor float64) *warmUpState {
	if coldFactor < 2 {
		coldFactor = 2
	}
	warningTokens := int64(float64(warmUpSeconds) * count / (coldFactor - 1))
	maxTokens := warningTokens + int64(2*float64(warmUpSeconds)*count/(1+coldFactor))
	slope := (coldFactor - 1) / (count * float64(maxTokens-warningTokens))

	w := &warmUpState{
		count:         count,
		warmUpSeconds: warmUpSeconds,
		coldFactor:    coldFactor,
		warningTokens: warningTokens,
		maxTokens:     maxTokens,
		slope:         slope,
	}
	// Cold start: the system behaves as if storedTokens had already
	// reached maxTokens before the first call (spec.md §4.6c).
	w.storedTokens.Store(maxTokens)
	return w
}

// syncTokens grants/consumes tokens for the one-second window that just
// closed, based on its observed pass qps. Grants happen at most once per
// second (spec.md §4.6c step 1).
func (w *warmUpState) syncTokens(now int64, prevWindowPassQps float64) {
	nowSecond := now - now%1000
	if nowSecond <= w.lastFillMillis.Load() {
		return
	}
	stored := w.storedTokens.Load()
	newStored := w.cooldown(nowSecond, stored, prevWindowPassQps)
	newStored -= int64(prevWindowPassQps)
	if newStored < 0 {
		newStored = 0
	}
	w.storedTokens.Store(newStored)
	w.lastFillMillis.Store(nowSecond)
}

func (w *warmUpState) cooldown(nowSecond, stored int64, prevWindowPassQps float64) int64 {
	var newStored int64
	switch {
	case stored < w.warningTokens:
		newStored = stored + (nowSecond-w.lastFillMillis.Load())*int64(w.count)/1000
	case stored > w.warningTokens && prevWindowPassQps < w.count/w.coldFactor:
		newStored = stored + (nowSecond-w.lastFillMillis.Load())*int64(w.count)/1000
	default:
		newStored = stored
	}
	if newStored > w.maxTokens {
		newStored = w.maxTokens
	}
	return newStored
}

// currentMaxQps returns the effective admission ceiling for the current
// stored-token level: count when warmed up, linearly ramped down toward
// count/coldFactor while still cold.
func (w *warmUpState) currentMaxQps() float64 {
	stored := w.storedTokens.Load()
	if stored < w.warningTokens {
		return w.count
	}
	above := float64(stored - w.warningTokens)
	return math.Nextafter(1/(above*w.slope+1/w.count), math.Inf(1))
}

func prevWindowPassQps(src StatSource) float64 {
	m := src.SecondMetric()
	windowSeconds := float64(m.WindowLengthMillis()) / 1000
	if windowSeconds <= 0 {
		return 0
	}
	return float64(m.PreviousWindowPass()) / windowSeconds
}

// WarmUpController is the token-bucket warm-up controller (spec.md
// §4.6c): admission is decided directly against passQps.
type WarmUpController struct {
	state *warmUpState
}

// NewWarmUpController builds a WarmUpController targeting a steady-state
// rate of count req/s, ramping up over warmUpSeconds from count/coldFactor.
func NewWarmUpController(count float64, warmUpSeconds int64, coldFactor float64) *WarmUpController {
	return &WarmUpController{state: newWarmUpState(count, warmUpSeconds, coldFactor)}
}

// CanPass implements spec.md §4.6c.
func (c *WarmUpController) CanPass(now int64, src StatSource, acquireCount int64, prioritized bool) (bool, error) {
	c.state.syncTokens(now, prevWindowPassQps(src))

	if c.state.storedTokens.Load() >= c.state.warningTokens {
		if src.PassQps()+float64(acquireCount) <= c.state.currentMaxQps() {
			return true, nil
		}
		return false, nil
	}
	if src.PassQps()+float64(acquireCount) <= c.state.count {
		return true, nil
	}
	return false, nil
}
