package stat

import "github.com/sluicelab/sluice/internal/clock"

// BucketSnapshot is a read-only point-in-time view of one window, returned
// by Metric.Details for export/debugging.
type BucketSnapshot struct {
	StartMillis  int64
	Pass         int64
	Block        int64
	Exception    int64
	Success      int64
	RtSum        int64
	OccupiedPass int64
	MinRt        int64
}

// Metric is the aggregation façade over a LeapArray: it is what StatNode
// actually holds and what FlowRuleChecker/DegradeRule read from. An
// occupiable Metric also owns a FutureLeapArray for priority "borrow from
// the future" bookkeeping; a non-occupiable one (e.g. the minute-grained
// metric) does not.
type Metric struct {
	clk    clock.Clock
	ring   *LeapArray
	future *FutureLeapArray // nil unless occupiable
}

// NewMetric creates a Metric. When occupiable is true the returned Metric
// supports AddWaiting/Waiting/FutureWindowPass and migrates booked future
// passes into buckets as they roll over.
func NewMetric(clk clock.Clock, sampleCount int, intervalMillis int64, occupiable bool) (*Metric, error) {
	if clk == nil {
		clk = clock.Default
	}
	if !occupiable {
		ring, err := NewLeapArray(sampleCount, intervalMillis, nil)
		if err != nil {
			return nil, err
		}
		return &Metric{clk: clk, ring: ring}, nil
	}
	o, err := NewOccupiableLeapArray(sampleCount, intervalMillis)
	if err != nil {
		return nil, err
	}
	return &Metric{clk: clk, ring: o.Primary, future: o.Future}, nil
}

func (m *Metric) now() int64 { return m.clk.NowMillis() }

func (m *Metric) current() *Bucket {
	return m.ring.CurrentWindow(m.now()).bucket
}

// SampleCount, IntervalMillis and WindowLengthMillis describe the ring's
// geometry.
func (m *Metric) SampleCount() int           { return m.ring.SampleCount() }
func (m *Metric) IntervalMillis() int64      { return m.ring.IntervalMillis() }
func (m *Metric) WindowLengthMillis() int64  { return m.ring.WindowLengthMillis() }
func (m *Metric) IntervalSeconds() float64   { return float64(m.ring.IntervalMillis()) / 1000 }

// AddPass, AddBlock, AddException, AddSuccess, AddOccupiedPass and AddRt
// record an event into the current window.
func (m *Metric) AddPass(n int64)         { m.current().addPass(n) }
func (m *Metric) AddBlock(n int64)        { m.current().addBlock(n) }
func (m *Metric) AddException(n int64)    { m.current().addException(n) }
func (m *Metric) AddSuccess(n int64)      { m.current().addSuccess(n) }
func (m *Metric) AddOccupiedPass(n int64) { m.current().addOccupiedPass(n) }
func (m *Metric) AddRt(ms int64)          { m.current().addRt(ms) }

// AddWaiting books n passes into the future ring for delivery at futureT.
// Panics if the Metric was not created as occupiable — this is a
// programmer error, not a runtime condition callers should branch on.
func (m *Metric) AddWaiting(futureT, n int64) {
	if m.future == nil {
		panic("stat: AddWaiting called on a non-occupiable Metric")
	}
	m.future.AddPass(futureT, n)
}

// Waiting returns the total passes currently booked into future windows.
// Returns 0 for a non-occupiable Metric.
func (m *Metric) Waiting() int64 {
	if m.future == nil {
		return 0
	}
	return m.future.CurrentWaiting(m.now())
}

// FutureWindowPass peeks (without booking) the amount already booked for
// the future window addressed by futureT.
func (m *Metric) FutureWindowPass(futureT int64) int64 {
	if m.future == nil {
		return 0
	}
	return m.future.PeekPass(m.now(), futureT)
}

// Pass, Block, Exception and Success sum the corresponding counter across
// every valid (non-expired) window. Pass first rolls the current window, so
// passes booked for it in the future ring are migrated in before summing.
func (m *Metric) Pass() int64 {
	now := m.now()
	m.ring.CurrentWindow(now)
	var total int64
	for _, s := range m.ring.Values(now) {
		total += s.bucket.Pass()
	}
	return total
}

func (m *Metric) Block() int64 {
	var total int64
	for _, s := range m.ring.Values(m.now()) {
		total += s.bucket.Block()
	}
	return total
}

func (m *Metric) Exception() int64 {
	var total int64
	for _, s := range m.ring.Values(m.now()) {
		total += s.bucket.Exception()
	}
	return total
}

func (m *Metric) Success() int64 {
	var total int64
	for _, s := range m.ring.Values(m.now()) {
		total += s.bucket.Success()
	}
	return total
}

func (m *Metric) OccupiedPass() int64 {
	var total int64
	for _, s := range m.ring.Values(m.now()) {
		total += s.bucket.OccupiedPass()
	}
	return total
}

// RtSum sums recorded response time across every valid window.
func (m *Metric) RtSum() int64 {
	var total int64
	for _, s := range m.ring.Values(m.now()) {
		total += s.bucket.RtSum()
	}
	return total
}

// MinRt returns the minimum response time observed across every valid
// window, or 0 if none recorded.
func (m *Metric) MinRt() int64 {
	var min int64 = -1
	for _, s := range m.ring.Values(m.now()) {
		if v := s.bucket.MinRt(); v > 0 && (min < 0 || v < min) {
			min = v
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

// PreviousWindowPass returns the pass count of the window immediately
// preceding the current one, or 0 if it isn't installed/has expired.
func (m *Metric) PreviousWindowPass() int64 {
	s := m.ring.PreviousWindow(m.now())
	if s == nil {
		return 0
	}
	return s.bucket.Pass()
}

// GetWindowPass returns the pass count of whatever valid window currently
// covers time t (read-only; does not create or roll any bucket).
func (m *Metric) GetWindowPass(t int64) int64 {
	s := m.ring.Peek(m.now(), t)
	if s == nil {
		return 0
	}
	return s.bucket.Pass()
}

// Details returns a snapshot of every valid window, for export/debugging.
// The sum of per-bucket Pass equals Pass().
func (m *Metric) Details() []BucketSnapshot {
	vals := m.ring.Values(m.now())
	out := make([]BucketSnapshot, 0, len(vals))
	for _, s := range vals {
		b := s.bucket
		out = append(out, BucketSnapshot{
			StartMillis:  s.startMillis,
			Pass:         b.Pass(),
			Block:        b.Block(),
			Exception:    b.Exception(),
			Success:      b.Success(),
			RtSum:        b.RtSum(),
			OccupiedPass: b.OccupiedPass(),
			MinRt:        b.MinRt(),
		})
	}
	return out
}
