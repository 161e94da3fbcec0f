package chain

import "github.com/sluicelab/sluice/internal/node"

// SystemRule is the process-wide inbound guard (spec.md §4.5's "System"
// slot): ceilings checked against the NodeGraph's single global in-bound
// node (spec.md §2/§3), not any one resource's own counters, independent of
// any per-resource FlowRule.
type SystemRule struct {
	MaxQps     float64
	MaxThreads int64
	MaxAvgRtMs float64
}

// Allows reports whether global's current load — the process-wide
// aggregate of every IN-direction resource — is within every configured
// ceiling. A zero ceiling means "unbounded" for that dimension.
func (r *SystemRule) Allows(global *node.StatNode, acquireCount int64) bool {
	if r == nil {
		return true
	}
	if r.MaxQps > 0 && global.PassQps()+float64(acquireCount) > r.MaxQps {
		return false
	}
	if r.MaxThreads > 0 && global.CurrentThreads() >= r.MaxThreads {
		return false
	}
	if r.MaxAvgRtMs > 0 && global.AvgRt() > r.MaxAvgRtMs {
		return false
	}
	return true
}
