package flow

import "time"

// RejectController is the fixed-threshold reject-on-exceed controller
// (spec.md §4.6a). Its priority branch cooperates with
// StatNode.TryOccupyNext to admit a prioritized QPS-graded caller that
// would otherwise be rejected, by booking it against a future window and
// sleeping until that window opens.
type RejectController struct {
	count         float64
	grade         Grade
	occupyTimeout int64

	// Sleep is overridable in tests so priority-occupy paths don't
	// actually block the test goroutine.
	Sleep func(time.Duration)
}

// NewRejectController builds a RejectController for the given threshold,
// grade, and priority-occupy timeout.
func NewRejectController(count float64, grade Grade, occupyTimeoutMs int64) *RejectController {
	return &RejectController{count: count, grade: grade, occupyTimeout: occupyTimeoutMs, Sleep: time.Sleep}
}

func (c *RejectController) used(src StatSource) float64 {
	if c.grade == GradeThread {
		return float64(src.CurrentThreads())
	}
	return src.PassQps()
}

// CanPass implements spec.md §4.6a.
func (c *RejectController) CanPass(now int64, src StatSource, acquireCount int64, prioritized bool) (bool, error) {
	if c.used(src)+float64(acquireCount) <= c.count {
		return true, nil
	}
	if !prioritized || c.grade != GradeQPS {
		return false, nil
	}

	waitMs := src.TryOccupyNext(now, acquireCount, c.count, c.occupyTimeout)
	if waitMs >= c.occupyTimeout {
		return false, nil
	}

	src.SecondMetric().AddWaiting(now+waitMs, acquireCount)
	src.SecondMetric().AddOccupiedPass(acquireCount)
	if waitMs > 0 && c.Sleep != nil {
		c.Sleep(time.Duration(waitMs) * time.Millisecond)
	}
	return true, &PriorityWaitSignal{WaitMs: waitMs}
}
