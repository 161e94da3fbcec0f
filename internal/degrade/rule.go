// Package degrade implements the circuit-breaker state machine: spec.md
// §4.7's DegradeRule and its three grades.
package degrade

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sluicelab/sluice/internal/clock"
	"github.com/sluicelab/sluice/internal/node"
)

// Grade selects what a DegradeRule trips on.
type Grade int

const (
	// GradeAvgRT trips when average response time crosses Count for
	// RTSlowRequestAmount consecutive evaluations.
	GradeAvgRT Grade = iota
	// GradeExceptionRatio trips when exc/succ crosses Count.
	GradeExceptionRatio
	// GradeExceptionCount trips when the cluster's total exception count
	// crosses Count.
	GradeExceptionCount
)

// Rule is one circuit-breaker rule bound to a resource's ClusterNode.
type Rule struct {
	Resource node.ResourceKey
	Grade    Grade
	Count    float64

	TimeWindowSec      int64
	RTSlowRequestAmount int64
	MinRequestAmount    int64

	cluster *node.ClusterNode
	clk     clock.Clock

	cut       atomic.Bool
	passCount atomic.Int64

	mu        sync.Mutex
	scheduler *ResetScheduler
}

// Bind wires rule to the resource's ClusterNode and a shared
// ResetScheduler; must be called once before CanPass is used.
func (r *Rule) Bind(clk clock.Clock, cluster *node.ClusterNode, scheduler *ResetScheduler) {
	r.clk = clk
	r.cluster = cluster
	r.scheduler = scheduler
}

// Open reports whether the breaker is currently tripped.
func (r *Rule) Open() bool { return r.cut.Load() }

// CanPass evaluates the circuit: while open, every call is rejected; while
// closed, the configured grade decides whether this call trips the
// breaker (spec.md §4.7).
func (r *Rule) CanPass() bool {
	if r.cut.Load() {
		return false
	}
	switch r.Grade {
	case GradeAvgRT:
		return r.checkAvgRT()
	case GradeExceptionRatio:
		return r.checkExceptionRatio()
	default:
		return r.checkExceptionCount()
	}
}

func (r *Rule) checkAvgRT() bool {
	rt := r.cluster.AvgRt()
	if rt < r.Count {
		r.passCount.Store(0)
		return true
	}
	if r.passCount.Add(1) < r.RTSlowRequestAmount {
		return true
	}
	r.trip()
	return false
}

func (r *Rule) checkExceptionRatio() bool {
	m := r.cluster.SecondMetric()
	exc := float64(m.Exception())
	succ := float64(m.Success())
	total := float64(m.Pass() + m.Block())

	if total < float64(r.MinRequestAmount) {
		return true
	}
	if succ-exc <= 0 && exc < float64(r.MinRequestAmount) {
		return true
	}
	if succ == 0 {
		succ = 1
	}
	if exc/succ < r.Count {
		return true
	}
	r.trip()
	return false
}

func (r *Rule) checkExceptionCount() bool {
	if float64(r.cluster.TotalException()) < r.Count {
		return true
	}
	r.trip()
	return false
}

func (r *Rule) trip() {
	if !r.cut.CompareAndSwap(false, true) {
		return
	}
	if r.scheduler != nil {
		r.scheduler.ScheduleReset(r, time.Duration(r.TimeWindowSec)*time.Second)
	}
}

func (r *Rule) reset() {
	r.passCount.Store(0)
	r.cut.Store(false)
}

// ResetScheduler runs delayed reset tasks for tripped rules, backed by a
// single shared cron.Cron instance — the same recurring-task runner the
// rest of this codebase uses for scheduled maintenance work, repurposed
// here for one-shot delayed jobs via a custom Schedule.
type ResetScheduler struct {
	cron *cron.Cron
}

// NewResetScheduler creates and starts a ResetScheduler.
func NewResetScheduler() *ResetScheduler {
	s := &ResetScheduler{cron: cron.New(cron.WithSeconds())}
	s.cron.Start()
	return s
}

// Stop halts the underlying cron runner, waiting for in-flight jobs.
func (s *ResetScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// ScheduleReset arranges for rule to be reset to CLOSED after delay (at
// once for a zero or negative delay). The schedule fires exactly once
// (onceSchedule.Next returns the zero time after its single trigger), so the
// entry is never re-run; we leave it registered rather than race to Remove
// it from inside its own job.
func (s *ResetScheduler) ScheduleReset(rule *Rule, delay time.Duration) {
	at := time.Now().Add(delay)
	s.cron.Schedule(&onceSchedule{at: at}, cron.FuncJob(rule.reset))
}

// onceSchedule is a cron.Schedule that fires exactly once: at a fixed time,
// or as soon as it is scheduled if that time has already passed.
type onceSchedule struct {
	at    time.Time
	fired bool
}

func (o *onceSchedule) Next(t time.Time) time.Time {
	if o.fired {
		return time.Time{}
	}
	o.fired = true
	if t.Before(o.at) {
		return o.at
	}
	return t
}
