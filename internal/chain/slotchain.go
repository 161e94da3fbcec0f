package chain

import (
	"log"
	"sync/atomic"

	"github.com/sluicelab/sluice/internal/clock"
	"github.com/sluicelab/sluice/internal/degrade"
	"github.com/sluicelab/sluice/internal/flow"
	"github.com/sluicelab/sluice/internal/node"
	"github.com/sluicelab/sluice/internal/sctx"
)

// ResourceRules is the copy-on-write rule set for one resource: swapped
// wholesale on reload, never mutated in place, so readers never observe a
// torn update (spec.md §5).
type ResourceRules struct {
	Authority *AuthorityRule
	Flow      []*flow.Rule
	Degrade   []*degrade.Rule
}

// SlotChain is the fixed per-resource pipeline: LogSlot, StatisticSlot,
// Authority, System, Flow, Degrade (spec.md §4.5). NodeSelector and
// ClusterBuilder happen before a SlotChain ever runs — the caller resolves
// curNode/originNode via node.Graph and hands them to sctx.NewEntry.
type SlotChain struct {
	Resource    node.ResourceKey
	checker     *flow.Checker
	system      *SystemRule
	global      *node.StatNode
	statMaxRtMs int64
	verbose     bool
	clk         clock.Clock

	rules atomic.Pointer[ResourceRules]
}

// NewSlotChain builds a SlotChain for resource. system may be nil (no
// process-wide inbound guard configured). global is the NodeGraph's single
// in-bound aggregate node (spec.md §2/§3); System checks against it and
// StatisticSlot bookkeeping mirrors onto it for every IN-direction entry.
func NewSlotChain(clk clock.Clock, resource node.ResourceKey, checker *flow.Checker, system *SystemRule, global *node.StatNode, statMaxRtMs int64) *SlotChain {
	if clk == nil {
		clk = clock.Default
	}
	c := &SlotChain{Resource: resource, checker: checker, system: system, global: global, statMaxRtMs: statMaxRtMs, clk: clk}
	c.rules.Store(&ResourceRules{})
	return c
}

// isInbound reports whether this chain's resource is an IN-direction
// resource — the only kind whose statistics mirror onto the global
// in-bound node (spec.md §4.5.1).
func (c *SlotChain) isInbound() bool {
	return c.Resource.Direction == node.DirectionIn
}

// Rules returns this chain's current rule set.
func (c *SlotChain) Rules() *ResourceRules { return c.rules.Load() }

// SetRules atomically replaces this chain's rule set.
func (c *SlotChain) SetRules(r *ResourceRules) {
	if r == nil {
		r = &ResourceRules{}
	}
	c.rules.Store(r)
}

// SetVerbose toggles LogSlot's per-entry debug logging.
func (c *SlotChain) SetVerbose(v bool) { c.verbose = v }

// Entry implements sctx.Chain. It runs Authority, System, Flow and
// Degrade in order, then records statistics based on the outcome
// (spec.md §4.5.1): the statistic bookkeeping happens after, not before,
// the downstream decision, so flow/degrade never read a counter this same
// call already bumped.
func (c *SlotChain) Entry(ctx *sctx.Context, e *sctx.Entry, count int64, prioritized bool, args []any) error {
	if c.verbose {
		log.Printf("[chain] entry resource=%q context=%q origin=%q count=%d", e.Resource.Name, ctx.Name, ctx.Origin, count)
	}

	err := c.runGuards(ctx, e, count, prioritized)
	c.recordEntryOutcome(e, count, err)
	return err
}

func (c *SlotChain) runGuards(ctx *sctx.Context, e *sctx.Entry, count int64, prioritized bool) error {
	r := c.rules.Load()

	if !r.Authority.Allows(ctx.Origin) {
		return &BlockedError{Resource: c.Resource, Cause: CauseAuthority}
	}
	if !c.system.Allows(c.global, count) {
		return &BlockedError{Resource: c.Resource, Cause: CauseSystem}
	}

	var priorityWait error
	for _, rule := range r.Flow {
		ok, ferr := c.checker.CanPass(e.CreateMillis, rule, ctx, e.CurNode, count, prioritized)
		if !ok {
			return &BlockedError{Resource: c.Resource, Cause: CauseFlow}
		}
		if ferr != nil {
			priorityWait = ferr
		}
	}

	for _, rule := range r.Degrade {
		if !rule.CanPass() {
			return &BlockedError{Resource: c.Resource, Cause: CauseDegrade}
		}
	}

	return priorityWait
}

// recordEntryOutcome implements spec.md §4.5.1's StatisticSlot entry
// bookkeeping.
func (c *SlotChain) recordEntryOutcome(e *sctx.Entry, count int64, err error) {
	switch {
	case err == nil:
		e.CurNode.IncreaseThreadNum()
		e.CurNode.AddPassRequest(count)
		if e.OriginNode != nil {
			e.OriginNode.IncreaseThreadNum()
			e.OriginNode.AddPassRequest(count)
		}
		if c.global != nil && c.isInbound() {
			c.global.IncreaseThreadNum()
			c.global.AddPassRequest(count)
		}
	case isPriorityWait(err):
		e.CurNode.IncreaseThreadNum()
		if e.OriginNode != nil {
			e.OriginNode.IncreaseThreadNum()
		}
		if c.global != nil && c.isInbound() {
			c.global.IncreaseThreadNum()
		}
	case isBlocked(err):
		e.CurNode.IncreaseBlockQps(count)
		if e.OriginNode != nil {
			e.OriginNode.IncreaseBlockQps(count)
		}
		if c.global != nil && c.isInbound() {
			c.global.IncreaseBlockQps(count)
		}
	default:
		e.CurNode.IncreaseExceptionQps(count)
		if e.OriginNode != nil {
			e.OriginNode.IncreaseExceptionQps(count)
		}
		if c.global != nil && c.isInbound() {
			c.global.IncreaseExceptionQps(count)
		}
	}
}

func isPriorityWait(err error) bool {
	_, ok := err.(*flow.PriorityWaitSignal)
	return ok
}

func isBlocked(err error) bool {
	_, ok := err.(*BlockedError)
	return ok
}

// Exit implements sctx.Chain. It records latency (clamped to
// statMaxRtMs) and decrements the active-thread counter on curNode and,
// if present, originNode (spec.md §4.5.1).
func (c *SlotChain) Exit(ctx *sctx.Context, e *sctx.Entry, count int64, args []any) {
	if e.Err != nil {
		e.CurNode.DecreaseThreadNum()
		if e.OriginNode != nil {
			e.OriginNode.DecreaseThreadNum()
		}
		if c.global != nil && c.isInbound() {
			c.global.DecreaseThreadNum()
		}
		return
	}

	rt := c.clk.NowMillis() - e.CreateMillis
	if rt < 0 {
		rt = 0
	}
	if c.statMaxRtMs > 0 && rt > c.statMaxRtMs {
		rt = c.statMaxRtMs
	}

	e.CurNode.AddRtAndSuccess(rt, count)
	e.CurNode.DecreaseThreadNum()
	if e.OriginNode != nil {
		e.OriginNode.AddRtAndSuccess(rt, count)
		e.OriginNode.DecreaseThreadNum()
	}
	if c.global != nil && c.isInbound() {
		c.global.AddRtAndSuccess(rt, count)
		c.global.DecreaseThreadNum()
	}
}
