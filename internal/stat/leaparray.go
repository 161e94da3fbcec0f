package stat

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// BucketGenerator creates and resets the payload held inside a window slot.
// Implementations are free to seed a freshly-created or freshly-reset
// bucket from side state (OccupiableLeapArray uses this hook to migrate
// booked future passes into the bucket that just became current).
type BucketGenerator interface {
	NewEmptyBucket(startMillis int64) *Bucket
	ResetBucketTo(old *Bucket, startMillis int64) *Bucket
}

// simpleGenerator is the BucketGenerator for a plain (non-occupiable) ring:
// buckets are always reset to zero.
type simpleGenerator struct{}

func (simpleGenerator) NewEmptyBucket(int64) *Bucket { return newBucket() }
func (simpleGenerator) ResetBucketTo(_ *Bucket, _ int64) *Bucket {
	return newBucket()
}

// windowSlot pairs a bucket with the window start it currently represents.
// A slot is replaced wholesale (never mutated in place) whenever its window
// rolls over, which is what gives readers the "entirely new or entirely old,
// never mixed" guarantee spec.md §4.1 requires.
type windowSlot struct {
	startMillis int64
	bucket      *Bucket
}

// LeapArray is a fixed-size ring of windows covering a sliding interval.
// sampleCount windows of length intervalMillis/sampleCount each cover the
// most recent intervalMillis of time.
type LeapArray struct {
	sampleCount        int
	intervalMillis     int64
	windowLengthMillis int64
	windows            []atomic.Pointer[windowSlot]
	updateLock         sync.Mutex
	gen                BucketGenerator
}

// NewLeapArray creates a LeapArray. intervalMillis must be a positive
// multiple of sampleCount.
func NewLeapArray(sampleCount int, intervalMillis int64, gen BucketGenerator) (*LeapArray, error) {
	if sampleCount <= 0 {
		return nil, fmt.Errorf("stat: sampleCount must be positive, got %d", sampleCount)
	}
	if intervalMillis <= 0 || intervalMillis%int64(sampleCount) != 0 {
		return nil, fmt.Errorf("stat: intervalMillis %d must be a positive multiple of sampleCount %d", intervalMillis, sampleCount)
	}
	if gen == nil {
		gen = simpleGenerator{}
	}
	return &LeapArray{
		sampleCount:        sampleCount,
		intervalMillis:     intervalMillis,
		windowLengthMillis: intervalMillis / int64(sampleCount),
		windows:            make([]atomic.Pointer[windowSlot], sampleCount),
		gen:                gen,
	}, nil
}

// SampleCount returns the number of windows in the ring.
func (la *LeapArray) SampleCount() int { return la.sampleCount }

// IntervalMillis returns the total span covered by the ring.
func (la *LeapArray) IntervalMillis() int64 { return la.intervalMillis }

// WindowLengthMillis returns the width of a single window.
func (la *LeapArray) WindowLengthMillis() int64 { return la.windowLengthMillis }

func (la *LeapArray) idx(t int64) int {
	return int((t / la.windowLengthMillis) % int64(la.sampleCount))
}

func (la *LeapArray) windowStart(t int64) int64 {
	return t - t%la.windowLengthMillis
}

// CurrentWindow returns the window containing t, creating or recycling a
// ring slot as needed. If t is behind the installed slot's start (a clock
// regression) and the ring holds more than one bucket, a transient window
// is returned without touching the ring.
func (la *LeapArray) CurrentWindow(t int64) *windowSlot {
	idx := la.idx(t)
	start := la.windowStart(t)
	slot := &la.windows[idx]

	for {
		old := slot.Load()
		if old == nil {
			nw := &windowSlot{startMillis: start, bucket: la.gen.NewEmptyBucket(start)}
			if slot.CompareAndSwap(nil, nw) {
				return nw
			}
			runtime.Gosched()
			continue
		}
		if old.startMillis == start {
			return old
		}
		if old.startMillis < start {
			if !la.updateLock.TryLock() {
				runtime.Gosched()
				continue
			}
			// Re-check under the lock: another writer may have already
			// rolled this slot forward while we were spinning for the lock.
			cur := slot.Load()
			if cur.startMillis >= start {
				la.updateLock.Unlock()
				if cur.startMillis == start {
					return cur
				}
				continue
			}
			nw := &windowSlot{startMillis: start, bucket: la.gen.ResetBucketTo(cur.bucket, start)}
			slot.Store(nw)
			la.updateLock.Unlock()
			return nw
		}
		// old.startMillis > start: t is behind what's installed.
		if la.sampleCount == 1 {
			return old
		}
		return &windowSlot{startMillis: start, bucket: la.gen.NewEmptyBucket(start)}
	}
}

// isDeprecated reports whether a window starting at startMillis is stale as
// of now (its entire span has fallen out of the sliding interval).
func (la *LeapArray) isDeprecated(now, startMillis int64) bool {
	return now-startMillis > la.intervalMillis
}

// Values returns every non-expired window currently installed in the ring,
// in no particular order.
func (la *LeapArray) Values(now int64) []*windowSlot {
	out := make([]*windowSlot, 0, la.sampleCount)
	for i := range la.windows {
		s := la.windows[i].Load()
		if s == nil || la.isDeprecated(now, s.startMillis) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// PreviousWindow returns the window immediately preceding now's current
// window, if it is still installed and not expired.
func (la *LeapArray) PreviousWindow(now int64) *windowSlot {
	wantStart := la.windowStart(now) - la.windowLengthMillis
	if wantStart < 0 {
		return nil
	}
	idx := la.idx(wantStart)
	s := la.windows[idx].Load()
	if s == nil || s.startMillis != wantStart || la.isDeprecated(now, s.startMillis) {
		return nil
	}
	return s
}

// Peek returns whatever window slot currently occupies the index for t,
// without creating, resetting, or otherwise mutating the ring. Returns nil
// if no slot is installed, the installed slot doesn't cover t, or it has
// already expired relative to now.
func (la *LeapArray) Peek(now, t int64) *windowSlot {
	wantStart := la.windowStart(t)
	idx := la.idx(t)
	s := la.windows[idx].Load()
	if s == nil || s.startMillis != wantStart {
		return nil
	}
	if la.isDeprecated(now, s.startMillis) {
		return nil
	}
	return s
}
