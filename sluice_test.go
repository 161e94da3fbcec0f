package sluice

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sluicelab/sluice/internal/clock"
)

func newTestEngine(t *testing.T) (*Engine, *clock.Mock) {
	t.Helper()
	mc := clock.NewMock(0)
	e := newEngine(DefaultConfig(), mc)
	return e, mc
}

func TestEntryExit_AdmitsAndRecordsStats(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := e.EnterContext("svc.orders", "caller-a")

	entry, err := ctx.Entry("downstream.billing", DirectionOut, 1, false)
	if err != nil {
		t.Fatalf("expected admit, got %v", err)
	}
	if err := entry.Exit(1); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}

	found := false
	for _, r := range e.Resources() {
		if r == "downstream.billing" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected downstream.billing to be tracked, got %v", e.Resources())
	}
}

func TestEntry_FlowRuleBlocksOnThreadCeiling(t *testing.T) {
	e, _ := newTestEngine(t)
	e.LoadFlowRules([]*FlowRule{
		{Resource: "svc.worker", Count: 1, Grade: GradeThread, Behavior: BehaviorReject},
	})
	ctx := e.EnterContext("caller", "")

	first, err := ctx.Entry("svc.worker", DirectionIn, 1, false)
	if err != nil {
		t.Fatalf("expected first call admitted, got %v", err)
	}

	_, err = ctx.Entry("svc.worker", DirectionIn, 1, false)
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected BlockedError while first call is in flight, got %v", err)
	}
	if blocked.Cause != CauseFlow {
		t.Fatalf("expected CauseFlow, got %v", blocked.Cause)
	}

	if err := first.Exit(1); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
	if _, err := ctx.Entry("svc.worker", DirectionIn, 1, false); err != nil {
		t.Fatalf("expected admit once the in-flight call exited, got %v", err)
	}
}

func TestEntry_AuthorityRuleDenies(t *testing.T) {
	e, _ := newTestEngine(t)
	e.LoadAuthorityRules([]*AuthorityRule{
		{Resource: "svc.admin", Strategy: AuthorityDeny, Origins: []string{"untrusted"}},
	})

	allowed := e.EnterContext("c1", "trusted")
	if _, err := allowed.Entry("svc.admin", DirectionIn, 1, false); err != nil {
		t.Fatalf("expected trusted origin admitted, got %v", err)
	}

	denied := e.EnterContext("c2", "untrusted")
	_, err := denied.Entry("svc.admin", DirectionIn, 1, false)
	var blocked *BlockedError
	if !errors.As(err, &blocked) || blocked.Cause != CauseAuthority {
		t.Fatalf("expected CauseAuthority block, got %v", err)
	}
}

func TestEntry_SystemRuleChecksGlobalInboundAcrossResources(t *testing.T) {
	cfg := DefaultConfig()
	cfg.System = &SystemRule{MaxThreads: 1}
	mc := clock.NewMock(0)
	e := newEngine(cfg, mc)
	ctx := e.EnterContext("c", "")

	first, err := ctx.Entry("svc.orders", DirectionIn, 1, false)
	if err != nil {
		t.Fatalf("expected first inbound call admitted, got %v", err)
	}

	// A second, entirely different IN resource is blocked too: the System
	// guard reads the process-wide global in-bound node, not svc.payments'
	// own (empty) counters.
	_, err = ctx.Entry("svc.payments", DirectionIn, 1, false)
	var blocked *BlockedError
	if !errors.As(err, &blocked) || blocked.Cause != CauseSystem {
		t.Fatalf("expected CauseSystem block against the global in-bound node, got %v", err)
	}

	// Even an OUT-direction resource is blocked while the ceiling is
	// exceeded: the System guard is a single process-wide check run on
	// every entry, independent of which resource (or direction) is
	// currently being entered.
	_, err = ctx.Entry("downstream.billing", DirectionOut, 1, false)
	if !errors.As(err, &blocked) || blocked.Cause != CauseSystem {
		t.Fatalf("expected outbound call to also see the exceeded global ceiling, got %v", err)
	}

	if err := first.Exit(1); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
	if _, err := ctx.Entry("svc.payments", DirectionIn, 1, false); err != nil {
		t.Fatalf("expected admit once the in-flight inbound call exited, got %v", err)
	}
}

func TestGlobalOff_AlwaysAdmitsAndExits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GlobalOn = false
	mc := clock.NewMock(0)
	e := newEngine(cfg, mc)
	e.LoadFlowRules([]*FlowRule{
		{Resource: "svc.worker", Count: 1, Grade: GradeThread, Behavior: BehaviorReject},
	})
	ctx := e.EnterContext("c", "")

	for i := 0; i < 5; i++ {
		entry, err := ctx.Entry("svc.worker", DirectionIn, 1, false)
		if err != nil {
			t.Fatalf("call %d: expected admit with global switch off, got %v", i, err)
		}
		if err := entry.Exit(1); err != nil {
			t.Fatalf("call %d: expected clean exit, got %v", i, err)
		}
	}
}

func TestAsyncEntry_DoesNotBlockCallerStack(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := e.EnterContext("c", "")

	sync, err := ctx.Entry("a", DirectionOut, 1, false)
	if err != nil {
		t.Fatalf("expected admit, got %v", err)
	}
	async, err := ctx.AsyncEntry("b", DirectionOut, 1, false)
	if err != nil {
		t.Fatalf("expected async admit, got %v", err)
	}

	// Exiting the async entry first must not disturb the synchronous
	// entry's own LIFO stack.
	if err := async.Exit(1); err != nil {
		t.Fatalf("expected clean async exit, got %v", err)
	}
	if err := sync.Exit(1); err != nil {
		t.Fatalf("expected clean sync exit, got %v", err)
	}
}

func TestLoadRulesFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	contents := `
flowRules:
  - resource: svc.worker
    count: 1
    grade: thread
    behavior: reject
authorityRules:
  - resource: svc.admin
    strategy: deny
    origins: [bad]
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	e, _ := newTestEngine(t)
	if err := e.LoadRulesFile(path); err != nil {
		t.Fatalf("LoadRulesFile: %v", err)
	}

	ctx := e.EnterContext("c", "bad")
	if _, err := ctx.Entry("svc.admin", DirectionIn, 1, false); err == nil {
		t.Fatalf("expected authority rule loaded from file to block")
	}

	first, err := ctx.Entry("svc.worker", DirectionIn, 1, false)
	if err != nil {
		t.Fatalf("expected first worker call admitted, got %v", err)
	}
	if _, err := ctx.Entry("svc.worker", DirectionIn, 1, false); err == nil {
		t.Fatalf("expected flow rule loaded from file to block the second call")
	}
	first.Exit(1)
}

func TestClusterMode_DelegatesToEmbeddedServer(t *testing.T) {
	e, _ := newTestEngine(t)
	srv := NewTokenServer()
	if err := srv.RegisterRule(ClusterRuleConfig{FlowID: 1, ThresholdType: ThresholdGlobal, Count: 1}); err != nil {
		t.Fatalf("RegisterRule: %v", err)
	}
	e.EnableClusterMode(srv, false)
	e.LoadFlowRules([]*FlowRule{
		{Resource: "svc.cluster", Count: 1, Grade: GradeQPS, Behavior: BehaviorReject, ClusterMode: true, ClusterFlowID: 1},
	})

	ctx := e.EnterContext("c", "node-a")
	first, err := ctx.Entry("svc.cluster", DirectionOut, 1, false)
	if err != nil {
		t.Fatalf("expected first call admitted by token server, got %v", err)
	}
	first.Exit(1)

	if _, err := ctx.Entry("svc.cluster", DirectionOut, 1, false); err == nil {
		t.Fatalf("expected second call blocked once the rule's threshold is exhausted")
	}
}
