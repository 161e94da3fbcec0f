package node

import (
	"sync/atomic"

	"github.com/sluicelab/sluice/internal/clock"
	"github.com/sluicelab/sluice/internal/stat"
)

// Second-grained metric geometry: 2 buckets of 500ms covering the most
// recent second, with future-booking enabled for priority occupy. Configure
// overrides these process-wide before the first StatNode is created (the
// library-level Config knobs of the same name); everything after that keeps
// using whatever geometry was in effect at the time.
var (
	secondMetricSampleCount = 2
	secondMetricIntervalMs  int64 = 1000
)

const (
	minuteMetricSampleCount = 60
	minuteMetricIntervalMs  = 60_000
)

// Configure overrides the second-grained metric's bucket geometry. It must
// be called, if at all, before any StatNode is created — StatNode reads
// these values once, at construction, and never again.
func Configure(sampleCount int, intervalMs int64) {
	if sampleCount > 0 {
		secondMetricSampleCount = sampleCount
	}
	if intervalMs > 0 {
		secondMetricIntervalMs = intervalMs
	}
}

// StatNode holds the real-time counters for one resource: a second-grained
// occupiable Metric, a minute-grained Metric, and a live thread count.
// DefaultNode, ClusterNode and the per-caller origin nodes all embed one.
type StatNode struct {
	clk               clock.Clock
	secondMetric      *stat.Metric
	minuteMetric      *stat.Metric
	activeThreads     atomic.Int64
	lastFetchMillis   atomic.Int64
}

// NewStatNode creates a StatNode. Panics if the metric geometry is
// internally inconsistent (the geometry set via Configure must have an
// interval that is a multiple of the sample count), since that would
// indicate a programming error, not bad input.
func NewStatNode(clk clock.Clock) *StatNode {
	if clk == nil {
		clk = clock.Default
	}
	second, err := stat.NewMetric(clk, secondMetricSampleCount, secondMetricIntervalMs, true)
	if err != nil {
		panic("node: invalid second metric geometry: " + err.Error())
	}
	minute, err := stat.NewMetric(clk, minuteMetricSampleCount, minuteMetricIntervalMs, false)
	if err != nil {
		panic("node: invalid minute metric geometry: " + err.Error())
	}
	return &StatNode{clk: clk, secondMetric: second, minuteMetric: minute}
}

// SecondMetric and MinuteMetric expose the underlying Metric façades for
// controllers and the degrade state machine.
func (n *StatNode) SecondMetric() *stat.Metric { return n.secondMetric }
func (n *StatNode) MinuteMetric() *stat.Metric { return n.minuteMetric }

// AddPassRequest, AddRtAndSuccess, IncreaseBlockQps, IncreaseExceptionQps
// and AddOccupiedPassRequest are the StatNode-local mutators; DefaultNode
// overrides these with propagation to its ClusterNode (§4.4), so callers
// that hold a DefaultNode should prefer its methods. Origin nodes and
// ClusterNode itself are leaves and use these directly.
func (n *StatNode) AddPassRequest(count int64) {
	n.secondMetric.AddPass(count)
	n.minuteMetric.AddPass(count)
	n.touch()
}

func (n *StatNode) AddRtAndSuccess(rtMs, count int64) {
	n.secondMetric.AddRt(rtMs * count)
	n.secondMetric.AddSuccess(count)
	n.minuteMetric.AddRt(rtMs * count)
	n.minuteMetric.AddSuccess(count)
	n.touch()
}

func (n *StatNode) IncreaseBlockQps(count int64) {
	n.secondMetric.AddBlock(count)
	n.minuteMetric.AddBlock(count)
	n.touch()
}

func (n *StatNode) IncreaseExceptionQps(count int64) {
	n.secondMetric.AddException(count)
	n.minuteMetric.AddException(count)
	n.touch()
}

func (n *StatNode) touch() { n.lastFetchMillis.Store(n.clk.NowMillis()) }

// LastFetchMillis returns the timestamp of this node's most recent
// counter mutation, used by the janitor to find long-idle resources
// (spec.md §3's StatNode.lastFetchMillis).
func (n *StatNode) LastFetchMillis() int64 { return n.lastFetchMillis.Load() }

func (n *StatNode) AddOccupiedPassRequest(count int64) {
	n.secondMetric.AddOccupiedPass(count)
}

// IncreaseThreadNum and DecreaseThreadNum must be paired across an
// entry/exit; CurrentThreads must never go negative (spec.md §3 invariant).
func (n *StatNode) IncreaseThreadNum() { n.activeThreads.Add(1) }
func (n *StatNode) DecreaseThreadNum() {
	if n.activeThreads.Add(-1) < 0 {
		// A mismatched exit already raises ErrEntryOrder upstream; clamp
		// here purely so a programming error elsewhere can't make the
		// counter permanently negative and poison THREAD-grade flow rules.
		n.activeThreads.Store(0)
	}
}

// CurrentThreads returns the live in-flight count for this node.
func (n *StatNode) CurrentThreads() int64 { return n.activeThreads.Load() }

// PassQps is the second-grained admitted-request rate.
func (n *StatNode) PassQps() float64 {
	return float64(n.secondMetric.Pass()) / n.secondMetric.IntervalSeconds()
}

// BlockQps is the second-grained rejected-request rate.
func (n *StatNode) BlockQps() float64 {
	return float64(n.secondMetric.Block()) / n.secondMetric.IntervalSeconds()
}

// AvgRt is the second-grained average response time in milliseconds.
func (n *StatNode) AvgRt() float64 {
	succ := n.secondMetric.Success()
	if succ <= 0 {
		succ = 1
	}
	return float64(n.secondMetric.RtSum()) / float64(succ)
}

// TotalException returns the cumulative exception count visible in the
// second-grained window, used by the EXCEPTION_COUNT degrade grade.
func (n *StatNode) TotalException() int64 { return n.secondMetric.Exception() }

// TotalMinuteRequest is pass+block over the minute-grained window.
func (n *StatNode) TotalMinuteRequest() int64 {
	return n.minuteMetric.Pass() + n.minuteMetric.Block()
}

// TryOccupyNext implements spec.md §4.4's future-token probe: it decides
// whether (and how long) a prioritized caller should wait for a future
// bucket to admit n more requests under threshold, without actually
// admitting or booking anything itself — callers that get back a wait time
// less than occupyTimeoutMs are expected to call AddWaiting/AddOccupiedPass
// themselves before sleeping.
//
// The exact bucket-aging arithmetic here resolves an open question left by
// spec.md §9 (the reference implementation's "historical pass" bookkeeping
// when walking multiple future buckets is not fully specified): this
// implementation treats the window that would exit the interval once a
// given future bucket becomes current as the window currently reported by
// previousWindowPass, which is exact for the default sampleCount=2
// second-grained metric and a conservative (slightly more permissive)
// approximation for larger sample counts.
func (n *StatNode) TryOccupyNext(now, acquireCount int64, threshold float64, occupyTimeoutMs int64) int64 {
	m := n.secondMetric
	windowLen := m.WindowLengthMillis()
	maxPerInterval := int64(threshold * float64(m.IntervalMillis()) / 1000)

	alreadyBorrowed := m.Waiting()
	if alreadyBorrowed >= maxPerInterval {
		return occupyTimeoutMs
	}

	currentPass := m.Pass()
	earliestPass := m.PreviousWindowPass()
	var cumulativeFutureBooked int64

	for k := 0; k < m.SampleCount(); k++ {
		waitMs := int64(k)*windowLen + windowLen - now%windowLen
		if waitMs > occupyTimeoutMs {
			break
		}
		historical := currentPass - earliestPass
		if historical+alreadyBorrowed+cumulativeFutureBooked+acquireCount <= maxPerInterval {
			return waitMs
		}
		futureT := now + waitMs
		cumulativeFutureBooked += m.FutureWindowPass(futureT)
	}
	return occupyTimeoutMs
}
