package rules

import (
	"testing"

	"github.com/sluicelab/sluice/internal/chain"
	"github.com/sluicelab/sluice/internal/clock"
	"github.com/sluicelab/sluice/internal/degrade"
	"github.com/sluicelab/sluice/internal/flow"
	"github.com/sluicelab/sluice/internal/node"
)

func TestRegistry_LoadFlowRules_PreservesDegradeRules(t *testing.T) {
	mc := clock.NewMock(0)
	g := node.NewGraph(mc)
	cm := chain.NewChainMap(mc, flow.NewChecker(g), nil, 4900, 0)
	sched := degrade.NewResetScheduler()
	defer sched.Stop()
	reg := NewRegistry(mc, g, cm, sched)

	res := node.ResourceKey{Name: "svc"}
	reg.LoadDegradeRules([]*degrade.Rule{{Resource: res, Grade: degrade.GradeExceptionCount, Count: 5, TimeWindowSec: 10}})
	reg.LoadFlowRules([]*flow.Rule{{Resource: res, Count: 10, Grade: flow.GradeQPS, Behavior: flow.BehaviorReject}})

	sc, ok := cm.SlotChainFor(res)
	if !ok {
		t.Fatalf("expected materialized chain for %q", res.Name)
	}
	rules := sc.Rules()
	if len(rules.Flow) != 1 {
		t.Fatalf("expected 1 flow rule, got %d", len(rules.Flow))
	}
	if len(rules.Degrade) != 1 {
		t.Fatalf("expected degrade rule preserved across flow rule reload, got %d", len(rules.Degrade))
	}
}
