package chain

import (
	"testing"

	"github.com/sluicelab/sluice/internal/clock"
	"github.com/sluicelab/sluice/internal/flow"
	"github.com/sluicelab/sluice/internal/node"
	"github.com/sluicelab/sluice/internal/sctx"
)

func newTestChain(t *testing.T) (*sctx.Manager, *node.Graph, *ChainMap) {
	t.Helper()
	mc := clock.NewMock(0)
	g := node.NewGraph(mc)
	mgr := sctx.NewManager(g, 2000)
	cm := NewChainMap(mc, flow.NewChecker(g), nil, 4900, 0)
	return mgr, g, cm
}

func TestSlotChain_AdmitsAndRecordsPass(t *testing.T) {
	mgr, g, cm := newTestChain(t)
	ctx := mgr.EnterContext("ctx1", "")
	res := node.ResourceKey{Name: "r1"}
	sc := cm.ChainFor(res)

	entranceNode := ctx.EntranceNode().DefaultNode
	curNode := g.Child(entranceNode, res)
	e := sctx.NewEntry(ctx, res, sc, curNode, nil, 0)

	if err := sc.Entry(ctx, e, 1, false, nil); err != nil {
		t.Fatalf("expected admit, got %v", err)
	}
	if got := curNode.SecondMetric().Pass(); got != 1 {
		t.Fatalf("expected pass recorded, got %d", got)
	}
	if got := curNode.CurrentThreads(); got != 1 {
		t.Fatalf("expected thread count 1, got %d", got)
	}

	e.Exit(1, nil)
	if got := curNode.CurrentThreads(); got != 0 {
		t.Fatalf("expected thread count 0 after exit, got %d", got)
	}
	if got := curNode.SecondMetric().Success(); got != 1 {
		t.Fatalf("expected success recorded on exit, got %d", got)
	}
}

func TestSlotChain_FlowRuleBlocks(t *testing.T) {
	mgr, g, cm := newTestChain(t)
	ctx := mgr.EnterContext("ctx2", "")
	res := node.ResourceKey{Name: "r2"}
	sc := cm.ChainFor(res)

	entranceNode := ctx.EntranceNode().DefaultNode
	curNode := g.Child(entranceNode, res)

	rule := &flow.Rule{Resource: res, Count: 0, Grade: flow.GradeQPS, Behavior: flow.BehaviorReject}
	sc.(*SlotChain).SetRules(&ResourceRules{Flow: []*flow.Rule{rule}})

	e := sctx.NewEntry(ctx, res, sc, curNode, nil, 0)
	err := sc.Entry(ctx, e, 1, false, nil)
	if err == nil {
		t.Fatalf("expected block")
	}
	if be, ok := err.(*BlockedError); !ok || be.Cause != CauseFlow {
		t.Fatalf("expected CauseFlow BlockedError, got %v", err)
	}
	if got := curNode.SecondMetric().Block(); got != 1 {
		t.Fatalf("expected block recorded, got %d", got)
	}
}

func TestChainMap_PassThroughBeyondCap(t *testing.T) {
	mc := clock.NewMock(0)
	g := node.NewGraph(mc)
	cm := NewChainMap(mc, flow.NewChecker(g), nil, 4900, 1)

	a := cm.ChainFor(node.ResourceKey{Name: "a"})
	if a == passThrough {
		t.Fatalf("first chain under cap must not be pass-through")
	}
	b := cm.ChainFor(node.ResourceKey{Name: "b"})
	if b != passThrough {
		t.Fatalf("expected pass-through chain once cap is reached")
	}
}

func TestAuthorityRule_DenyList(t *testing.T) {
	rule := NewAuthorityRule(node.ResourceKey{Name: "r"}, AuthorityDeny, []string{"blocked-origin"})
	if rule.Allows("blocked-origin") {
		t.Fatalf("expected denied origin to be rejected")
	}
	if !rule.Allows("other-origin") {
		t.Fatalf("expected unlisted origin to pass under deny strategy")
	}
}
