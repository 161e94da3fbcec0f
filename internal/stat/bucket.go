// Package stat implements the ring-buffered sliding-window metric engine:
// Bucket counters, the LeapArray ring, its future-booking variant
// (OccupiableLeapArray), and the Metric façade built on top of them.
package stat

import (
	"math"
	"sync/atomic"
)

// Bucket is a single time slice's counters. All fields are updated
// lock-free via atomics; a Bucket is never partially reset in place — a
// "reset" always installs a brand new Bucket behind an atomic pointer swap,
// so a reader either observes the fully-populated old bucket or the fully
// zeroed new one, never a mix (see LeapArray's slot-install discipline).
// The one in-place change is FutureLeapArray.consumeAt, which swaps a future
// bucket's pass counter to zero when migrating it into the primary ring.
type Bucket struct {
	pass         atomic.Int64
	block        atomic.Int64
	exception    atomic.Int64
	success      atomic.Int64
	rtSum        atomic.Int64
	occupiedPass atomic.Int64
	minRt        atomic.Int64
}

// minRtUnset is the sentinel stored in minRt before any response time has
// been recorded in the bucket.
const minRtUnset = math.MaxInt64

func newBucket() *Bucket {
	b := &Bucket{}
	b.minRt.Store(minRtUnset)
	return b
}

func (b *Bucket) addPass(n int64)         { b.pass.Add(n) }
func (b *Bucket) addBlock(n int64)        { b.block.Add(n) }
func (b *Bucket) addException(n int64)    { b.exception.Add(n) }
func (b *Bucket) addSuccess(n int64)      { b.success.Add(n) }
func (b *Bucket) addOccupiedPass(n int64) { b.occupiedPass.Add(n) }

func (b *Bucket) addRt(rtMs int64) {
	b.rtSum.Add(rtMs)
	for {
		cur := b.minRt.Load()
		if rtMs >= cur {
			return
		}
		if b.minRt.CompareAndSwap(cur, rtMs) {
			return
		}
	}
}

// Pass, Block, Exception, Success, RtSum, OccupiedPass and MinRt expose
// point-in-time reads of the bucket's counters.
func (b *Bucket) Pass() int64         { return b.pass.Load() }
func (b *Bucket) Block() int64        { return b.block.Load() }
func (b *Bucket) Exception() int64    { return b.exception.Load() }
func (b *Bucket) Success() int64      { return b.success.Load() }
func (b *Bucket) RtSum() int64        { return b.rtSum.Load() }
func (b *Bucket) OccupiedPass() int64 { return b.occupiedPass.Load() }

// MinRt returns the minimum recorded response time, or 0 if none recorded.
func (b *Bucket) MinRt() int64 {
	v := b.minRt.Load()
	if v == minRtUnset {
		return 0
	}
	return v
}
