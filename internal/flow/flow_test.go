package flow

import (
	"testing"
	"time"

	"github.com/sluicelab/sluice/internal/clock"
	"github.com/sluicelab/sluice/internal/node"
)

func noSleep(time.Duration) {}

func TestRejectController_AdmitsUnderThreshold(t *testing.T) {
	mc := clock.NewMock(0)
	sn := node.NewStatNode(mc)
	c := NewRejectController(2.0, GradeQPS, 500)

	ok, err := c.CanPass(0, sn, 1, false)
	if !ok || err != nil {
		t.Fatalf("expected admit, got ok=%v err=%v", ok, err)
	}
	sn.SecondMetric().AddPass(1)

	ok, err = c.CanPass(0, sn, 1, false)
	if !ok || err != nil {
		t.Fatalf("expected second admit at threshold, got ok=%v err=%v", ok, err)
	}
	sn.SecondMetric().AddPass(1)

	ok, err = c.CanPass(0, sn, 1, false)
	if ok || err != nil {
		t.Fatalf("expected reject over threshold, got ok=%v err=%v", ok, err)
	}
}

func TestRejectController_PriorityOccupyAdmitsWithSignal(t *testing.T) {
	mc := clock.NewMock(0)
	sn := node.NewStatNode(mc)
	sn.SecondMetric().AddPass(2)

	c := NewRejectController(2.0, GradeQPS, 500)
	c.Sleep = noSleep

	// At t=700 the saturated [0,500) window is the previous one; it expires
	// at t=1000, a 300ms wait, inside the 500ms occupy timeout.
	mc.Set(700)
	ok, err := c.CanPass(700, sn, 1, true)
	if !ok {
		t.Fatalf("expected priority occupy to admit, got ok=%v err=%v", ok, err)
	}
	if _, isWait := err.(*PriorityWaitSignal); !isWait {
		t.Fatalf("expected PriorityWaitSignal, got %v", err)
	}
}

func TestRateLimiterController_PacesRequests(t *testing.T) {
	mc := clock.NewMock(0)
	sn := node.NewStatNode(mc)
	c := NewRateLimiterController(2.0, 1000) // costMs = 500 per request
	c.Sleep = noSleep

	ok, err := c.CanPass(0, sn, 1, false)
	if !ok || err != nil {
		t.Fatalf("first request should admit immediately, got ok=%v err=%v", ok, err)
	}
	ok, err = c.CanPass(100, sn, 1, false)
	if !ok || err != nil {
		t.Fatalf("second request should queue within maxQueueMs, got ok=%v err=%v", ok, err)
	}
}

func TestRateLimiterController_RejectsBeyondQueue(t *testing.T) {
	mc := clock.NewMock(0)
	sn := node.NewStatNode(mc)
	c := NewRateLimiterController(1.0, 200) // costMs = 1000 per request, maxQueueMs=200
	c.Sleep = noSleep

	ok, _ := c.CanPass(0, sn, 1, false)
	if !ok {
		t.Fatalf("first request should admit")
	}
	ok, _ = c.CanPass(0, sn, 1, false)
	if ok {
		t.Fatalf("second immediate request should exceed maxQueueMs and reject")
	}
}

func TestWarmUpController_ColdStartRampsUp(t *testing.T) {
	mc := clock.NewMock(0)
	sn := node.NewStatNode(mc)
	c := NewWarmUpController(10, 5, 3)

	if c.state.storedTokens.Load() != c.state.maxTokens {
		t.Fatalf("expected cold start at maxTokens, got %d", c.state.storedTokens.Load())
	}
	maxQps := c.state.currentMaxQps()
	if maxQps >= 10 {
		t.Fatalf("expected ramped-down ceiling below steady count, got %f", maxQps)
	}

	ok, err := c.CanPass(0, sn, 1, false)
	if !ok || err != nil {
		t.Fatalf("expected first cold call admitted at ramped rate, got ok=%v err=%v", ok, err)
	}
}

func TestWarmUpRateLimiterController_AdmitsFirstCall(t *testing.T) {
	mc := clock.NewMock(0)
	sn := node.NewStatNode(mc)
	c := NewWarmUpRateLimiterController(10, 5, 3, 2000)
	c.Sleep = noSleep

	ok, err := c.CanPass(0, sn, 1, false)
	if !ok || err != nil {
		t.Fatalf("expected first call admitted, got ok=%v err=%v", ok, err)
	}
}
