package stat

import (
	"testing"

	"github.com/sluicelab/sluice/internal/clock"
)

func TestMetric_DetailsRoundTripsPass(t *testing.T) {
	mc := clock.NewMock(0)
	m, err := NewMetric(mc, 2, 1000, false)
	if err != nil {
		t.Fatalf("NewMetric: %v", err)
	}

	m.AddPass(3)
	mc.Set(500)
	m.AddPass(4)

	details := m.Details()
	var sum int64
	for _, d := range details {
		sum += d.Pass
	}
	if sum != m.Pass() {
		t.Fatalf("sum of bucket passes %d != Metric.Pass() %d", sum, m.Pass())
	}
	if m.Pass() != 7 {
		t.Fatalf("expected total pass 7, got %d", m.Pass())
	}
}

func TestMetric_NoPhantomCounts(t *testing.T) {
	mc := clock.NewMock(0)
	m, err := NewMetric(mc, 2, 1000, false)
	if err != nil {
		t.Fatalf("NewMetric: %v", err)
	}
	m.AddPass(5)

	before := m.Pass()
	mc.Set(200)
	after := m.Pass()
	if after != before {
		t.Fatalf("pass count changed with no new events: before=%d after=%d", before, after)
	}
}

func TestMetric_OccupiableWaitingAndMigration(t *testing.T) {
	mc := clock.NewMock(500)
	m, err := NewMetric(mc, 2, 1000, true)
	if err != nil {
		t.Fatalf("NewMetric: %v", err)
	}

	m.AddWaiting(1000, 1)
	if got := m.Waiting(); got != 1 {
		t.Fatalf("expected waiting=1, got %d", got)
	}

	mc.Set(1000)
	if got := m.Pass(); got != 1 {
		t.Fatalf("expected migrated pass=1 once window rolls to 1000, got %d", got)
	}
	if got := m.Waiting(); got != 0 {
		t.Fatalf("expected waiting=0 after migration, got %d", got)
	}
}

func TestMetric_MinRt(t *testing.T) {
	mc := clock.NewMock(0)
	m, err := NewMetric(mc, 1, 1000, false)
	if err != nil {
		t.Fatalf("NewMetric: %v", err)
	}
	if got := m.MinRt(); got != 0 {
		t.Fatalf("expected 0 minRt with no samples, got %d", got)
	}
	m.AddRt(50)
	m.AddRt(10)
	m.AddRt(30)
	if got := m.MinRt(); got != 10 {
		t.Fatalf("expected minRt=10, got %d", got)
	}
}
