package chain

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/sluicelab/sluice/internal/clock"
	"github.com/sluicelab/sluice/internal/flow"
	"github.com/sluicelab/sluice/internal/node"
	"github.com/sluicelab/sluice/internal/sctx"
)

// MaxSlotChainSize is the default ceiling on distinct per-resource chains
// (spec.md §6's maxSlotChain knob).
const MaxSlotChainSize = 6000

// passThroughChain is the no-op chain returned once MaxSlotChainSize is
// reached: every entry is admitted and no statistics are recorded,
// matching spec.md §5's "creation beyond this returns a no-op chain
// rather than failing".
type passThroughChain struct{}

func (passThroughChain) Entry(*sctx.Context, *sctx.Entry, int64, bool, []any) error { return nil }
func (passThroughChain) Exit(*sctx.Context, *sctx.Entry, int64, []any)              {}

var passThrough sctx.Chain = passThroughChain{}

// NoOpChain returns the shared pass-through chain: every entry is
// admitted and no statistics are recorded. Used both beyond
// MaxSlotChainSize and by the public API when the global on/off switch
// (spec.md §6's global.on) is false.
func NoOpChain() sctx.Chain { return passThrough }

// ChainMap is the copy-on-write resource-name → SlotChain registry
// (spec.md §5's chainMap).
type ChainMap struct {
	clk      clock.Clock
	checker  *flow.Checker
	system   *SystemRule
	global   *node.StatNode
	maxRtMs  int64
	maxSize  int64
	chains   *xsync.Map[string, *SlotChain]
	count    atomic.Int64
}

// NewChainMap builds a ChainMap. maxSize <= 0 uses MaxSlotChainSize. Every
// SlotChain it creates shares checker.Graph's single global in-bound node
// (spec.md §2/§3), so System guards and IN-direction statistic bookkeeping
// across every resource in this map see the same process-wide aggregate.
func NewChainMap(clk clock.Clock, checker *flow.Checker, system *SystemRule, maxRtMs int64, maxSize int64) *ChainMap {
	if maxSize <= 0 {
		maxSize = MaxSlotChainSize
	}
	var global *node.StatNode
	if checker != nil && checker.Graph != nil {
		global = checker.Graph.GlobalInbound()
	}
	return &ChainMap{
		clk:     clk,
		checker: checker,
		system:  system,
		global:  global,
		maxRtMs: maxRtMs,
		maxSize: maxSize,
		chains:  xsync.NewMap[string, *SlotChain](),
	}
}

// ChainFor returns (creating if absent) the SlotChain for resource. Once
// MaxSlotChainSize distinct chains exist, further unseen resources get the
// shared pass-through chain instead of growing the map.
func (m *ChainMap) ChainFor(resource node.ResourceKey) sctx.Chain {
	if sc, ok := m.chains.Load(resource.Name); ok {
		return sc
	}
	if m.count.Load() >= m.maxSize {
		return passThrough
	}

	sc := NewSlotChain(m.clk, resource, m.checker, m.system, m.global, m.maxRtMs)
	actual, loaded := m.chains.LoadOrStore(resource.Name, sc)
	if !loaded {
		m.count.Add(1)
	}
	return actual
}

// SlotChainFor returns the concrete *SlotChain for resource if one has
// been materialized (not the pass-through sentinel), for rule loading.
func (m *ChainMap) SlotChainFor(resource node.ResourceKey) (*SlotChain, bool) {
	sc, ok := m.chains.Load(resource.Name)
	return sc, ok
}
