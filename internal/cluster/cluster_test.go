package cluster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sluicelab/sluice/internal/clock"
)

func TestServer_AdmitsUnderThreshold(t *testing.T) {
	mc := clock.NewMock(0)
	s := NewServer(mc)
	if err := s.RegisterRule(RuleConfig{FlowID: 1, ThresholdType: ThresholdGlobal, Count: 10}); err != nil {
		t.Fatalf("RegisterRule: %v", err)
	}

	for i := 0; i < 10; i++ {
		res, err := s.RequestToken(context.Background(), Request{FlowID: 1, ClientID: "c1", AcquireCount: 1})
		if err != nil || res.Status != StatusOK {
			t.Fatalf("call %d: got %+v, err=%v", i, res, err)
		}
	}
	res, err := s.RequestToken(context.Background(), Request{FlowID: 1, ClientID: "c1", AcquireCount: 1})
	if err != nil || res.Status != StatusBlocked {
		t.Fatalf("expected 11th call blocked, got %+v, err=%v", res, err)
	}
}

func TestServer_UnknownFlowID(t *testing.T) {
	s := NewServer(clock.NewMock(0))
	res, err := s.RequestToken(context.Background(), Request{FlowID: 999, AcquireCount: 1})
	if err != nil || res.Status != StatusNoRuleExists {
		t.Fatalf("expected NO_RULE_EXISTS, got %+v, err=%v", res, err)
	}
}

func TestServer_AvgLocalScalesWithConnectedClients(t *testing.T) {
	mc := clock.NewMock(0)
	s := NewServer(mc)
	s.RegisterRule(RuleConfig{FlowID: 2, ThresholdType: ThresholdAvgLocal, Count: 5})

	s.RequestToken(context.Background(), Request{FlowID: 2, ClientID: "a", AcquireCount: 1})
	s.RequestToken(context.Background(), Request{FlowID: 2, ClientID: "b", AcquireCount: 1})

	var admitted int
	for i := 0; i < 20; i++ {
		res, _ := s.RequestToken(context.Background(), Request{FlowID: 2, ClientID: "a", AcquireCount: 1})
		if res.Status == StatusOK {
			admitted++
		}
	}
	// threshold scaled to 5*2=10, minus the 2 already admitted above.
	if admitted != 8 {
		t.Fatalf("expected 8 further admits under avg-local threshold, got %d", admitted)
	}
}

func TestServer_PrioritizedBorrowsFromFuture(t *testing.T) {
	mc := clock.NewMock(0)
	s := NewServer(mc)
	s.RegisterRule(RuleConfig{FlowID: 3, ThresholdType: ThresholdGlobal, Count: 1})

	s.RequestToken(context.Background(), Request{FlowID: 3, ClientID: "a", AcquireCount: 1})
	res, err := s.RequestToken(context.Background(), Request{FlowID: 3, ClientID: "a", AcquireCount: 1, Prioritized: true})
	if err != nil || res.Status != StatusShouldWait {
		t.Fatalf("expected SHOULD_WAIT for prioritized over-threshold request, got %+v, err=%v", res, err)
	}
	if res.WaitMs <= 0 {
		t.Fatalf("expected positive wait time, got %d", res.WaitMs)
	}
}

type fakeService struct {
	res TokenResult
	err error
}

func (f fakeService) RequestToken(context.Context, Request) (TokenResult, error) { return f.res, f.err }

func TestClient_OKAdmits(t *testing.T) {
	c := NewClient(fakeService{res: TokenResult{Status: StatusOK}}, false)
	ok, err := c.CanPass(context.Background(), Request{}, nil)
	if err != nil || !ok {
		t.Fatalf("expected admit, got ok=%v err=%v", ok, err)
	}
}

func TestClient_BlockedRejects(t *testing.T) {
	c := NewClient(fakeService{res: TokenResult{Status: StatusBlocked}}, false)
	ok, _ := c.CanPass(context.Background(), Request{}, nil)
	if ok {
		t.Fatalf("expected reject on BLOCKED")
	}
}

func TestClient_ShouldWaitSleepsThenAdmits(t *testing.T) {
	c := NewClient(fakeService{res: TokenResult{Status: StatusShouldWait, WaitMs: 50}}, false)
	var slept time.Duration
	c.Sleep = func(d time.Duration) { slept = d }
	ok, err := c.CanPass(context.Background(), Request{}, nil)
	if err != nil || !ok {
		t.Fatalf("expected admit after wait, got ok=%v err=%v", ok, err)
	}
	if slept != 50*time.Millisecond {
		t.Fatalf("expected sleep of 50ms, got %v", slept)
	}
}

func TestClient_ErrorFallsBackToLocalWhenConfigured(t *testing.T) {
	c := NewClient(fakeService{err: errors.New("boom")}, true)
	ok, err := c.CanPass(context.Background(), Request{}, func() bool { return false })
	if err != nil {
		t.Fatalf("CanPass itself should not surface the transport error: %v", err)
	}
	if ok {
		t.Fatalf("expected local fallback's false to win")
	}
}

func TestClient_ErrorWithoutFallbackAdmits(t *testing.T) {
	c := NewClient(fakeService{err: errors.New("boom")}, false)
	ok, err := c.CanPass(context.Background(), Request{}, func() bool { return false })
	if err != nil {
		t.Fatalf("CanPass itself should not surface the transport error: %v", err)
	}
	if !ok {
		t.Fatalf("expected admit when no local fallback is configured (never block on library bugs)")
	}
}

func TestGRPCWireRoundTrip(t *testing.T) {
	req := Request{FlowID: 7, ClientID: "caller", AcquireCount: 3, Prioritized: true}
	got := decodeRequest(encodeRequest(req))
	if got != req {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, req)
	}

	res := TokenResult{Status: StatusShouldWait, Remaining: 4, WaitMs: 500}
	gotRes := decodeResult(encodeResult(res))
	if gotRes != res {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", gotRes, res)
	}
}
