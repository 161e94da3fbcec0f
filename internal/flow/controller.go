package flow

import (
	"fmt"

	"github.com/sluicelab/sluice/internal/stat"
)

// StatSource is the subset of node.StatNode (also satisfied by
// node.DefaultNode and node.ClusterNode, which embed one) a controller
// needs to read and to book priority-occupy debt against.
type StatSource interface {
	PassQps() float64
	CurrentThreads() int64
	TryOccupyNext(now, acquireCount int64, threshold float64, occupyTimeoutMs int64) int64
	SecondMetric() *stat.Metric
}

// PriorityWaitSignal is raised by the reject-on-exceed controller's
// priority branch: it means "admitted after sleeping waitMs", not a
// rejection. spec.md §7 flags that StatisticSlot must treat it as a
// pass-without-incrementing-pass-count, not as success or rejection.
type PriorityWaitSignal struct {
	WaitMs int64
}

func (e *PriorityWaitSignal) Error() string {
	return fmt.Sprintf("flow: admitted after priority wait of %dms", e.WaitMs)
}

// Controller is a TrafficShapingController: spec.md §4.6's polymorphic
// admission algorithm. CanPass may sleep (leaky-bucket pacing, warm-up
// pacing, and the priority branch of reject-on-exceed all suspend the
// caller); a false return with a nil error is a plain rejection.
type Controller interface {
	CanPass(now int64, src StatSource, acquireCount int64, prioritized bool) (bool, error)
}
