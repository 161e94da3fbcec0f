package stat

// FutureLeapArray is a LeapArray whose "current window" for a given time t
// is the window immediately after t's current window — the slot used to
// pre-book ("occupy") passes for a bucket that hasn't started yet. Windows
// are deprecated using the same rule as LeapArray, evaluated against the
// shifted time, so a future window becomes stale once it has receded fully
// into the past.
type FutureLeapArray struct {
	ring *LeapArray
}

// NewFutureLeapArray creates a FutureLeapArray with the same geometry as a
// companion primary LeapArray.
func NewFutureLeapArray(sampleCount int, intervalMillis int64) (*FutureLeapArray, error) {
	ring, err := NewLeapArray(sampleCount, intervalMillis, simpleGenerator{})
	if err != nil {
		return nil, err
	}
	return &FutureLeapArray{ring: ring}, nil
}

func (f *FutureLeapArray) shift(t int64) int64 {
	return t + f.ring.WindowLengthMillis()
}

// CurrentWindow returns (creating if needed) the window slot that sits one
// bucket ahead of t's current window.
func (f *FutureLeapArray) CurrentWindow(t int64) *windowSlot {
	return f.ring.CurrentWindow(f.shift(t))
}

// AddPass books n passes into the future window reached from "now" via
// futureT (the absolute time the caller intends the pass to land at, e.g.
// now+waitMs from a controller's admission calculation).
func (f *FutureLeapArray) AddPass(futureT int64, n int64) {
	f.ring.CurrentWindow(futureT).bucket.addPass(n)
}

// CurrentWaiting sums the pass counters across every non-expired future
// window, i.e. the total amount of traffic currently borrowed against
// buckets that have not started yet.
func (f *FutureLeapArray) CurrentWaiting(now int64) int64 {
	var total int64
	for _, s := range f.ring.Values(f.shift(now)) {
		total += s.bucket.Pass()
	}
	return total
}

// PeekPass reads (without creating) the booked pass count for the future
// window reached from "now" via futureT, or 0 if nothing has been booked
// there (or the slot doesn't exist / no longer matches that start).
func (f *FutureLeapArray) PeekPass(now, futureT int64) int64 {
	s := f.ring.Peek(f.shift(now), futureT)
	if s == nil {
		return 0
	}
	return s.bucket.Pass()
}

// consumeAt reads and zeroes whatever pass count sits in the slot matching
// primaryStart (same window-start value used by the companion primary
// ring), returning the amount migrated. Used by OccupiableLeapArray to
// carry booked debt forward into the primary bucket that just became
// current, so the same traffic is not double-counted as still "waiting".
func (f *FutureLeapArray) consumeAt(primaryStart int64) int64 {
	idx := f.ring.idx(primaryStart)
	slot := &f.ring.windows[idx]
	s := slot.Load()
	if s == nil || s.startMillis != primaryStart {
		return 0
	}
	return s.bucket.pass.Swap(0)
}
