package stat

import "testing"

func TestLeapArray_CurrentWindow_Identity(t *testing.T) {
	la, err := NewLeapArray(2, 1000, nil)
	if err != nil {
		t.Fatalf("NewLeapArray: %v", err)
	}

	for _, tm := range []int64{0, 1, 499, 500, 999, 1000, 1500, 2001} {
		s := la.CurrentWindow(tm)
		if s.startMillis > tm {
			t.Fatalf("t=%d: startMillis %d > t", tm, s.startMillis)
		}
		if tm >= s.startMillis+la.WindowLengthMillis() {
			t.Fatalf("t=%d: t not within [start, start+len): start=%d len=%d", tm, s.startMillis, la.WindowLengthMillis())
		}
		if s.startMillis%la.WindowLengthMillis() != 0 {
			t.Fatalf("t=%d: startMillis %d not aligned to window length", tm, s.startMillis)
		}
	}
}

func TestLeapArray_Reset_NoPhantomCounts(t *testing.T) {
	la, err := NewLeapArray(2, 1000, nil)
	if err != nil {
		t.Fatalf("NewLeapArray: %v", err)
	}
	la.CurrentWindow(0).bucket.addPass(5)

	if got := la.Values(400)[0].bucket.Pass(); got != 5 {
		t.Fatalf("expected 5 passes still visible at t=400, got %d", got)
	}

	// Jump far enough that the old window is fully wrapped and recycled.
	s := la.CurrentWindow(2000)
	if s.bucket.Pass() != 0 {
		t.Fatalf("recycled bucket should start at 0 passes, got %d", s.bucket.Pass())
	}
}

func TestLeapArray_Values_ExcludesDeprecated(t *testing.T) {
	la, err := NewLeapArray(2, 1000, nil)
	if err != nil {
		t.Fatalf("NewLeapArray: %v", err)
	}
	la.CurrentWindow(0).bucket.addPass(1)
	la.CurrentWindow(500).bucket.addPass(2)

	vals := la.Values(500)
	if len(vals) != 2 {
		t.Fatalf("expected both windows valid at t=500, got %d", len(vals))
	}

	// At t=1600 both windows have aged out of the 1000ms interval
	// (1600-0=1600>1000 and 1600-500=1100>1000), so none remain valid.
	vals = la.Values(1600)
	if len(vals) != 0 {
		t.Fatalf("expected no valid windows at t=1600, got %d", len(vals))
	}
}

func TestLeapArray_ClockRegression_ReturnsTransientWindow(t *testing.T) {
	la, err := NewLeapArray(2, 1000, nil)
	if err != nil {
		t.Fatalf("NewLeapArray: %v", err)
	}
	la.CurrentWindow(1000).bucket.addPass(9)

	// Regress behind the installed slot's start; must not corrupt the ring.
	transient := la.CurrentWindow(400)
	if transient.bucket.Pass() != 0 {
		t.Fatalf("transient window must be fresh, got pass=%d", transient.bucket.Pass())
	}
	if got := la.CurrentWindow(1000).bucket.Pass(); got != 9 {
		t.Fatalf("regression must not corrupt installed slot, got pass=%d", got)
	}
}

func TestLeapArray_PreviousWindow(t *testing.T) {
	la, err := NewLeapArray(2, 1000, nil)
	if err != nil {
		t.Fatalf("NewLeapArray: %v", err)
	}
	la.CurrentWindow(0).bucket.addPass(7)
	la.CurrentWindow(500).bucket.addPass(3)

	prev := la.PreviousWindow(500)
	if prev == nil || prev.bucket.Pass() != 7 {
		t.Fatalf("expected previous window pass=7, got %+v", prev)
	}
}

func TestOccupiableLeapArray_MigratesBookedDebt(t *testing.T) {
	o, err := NewOccupiableLeapArray(2, 1000)
	if err != nil {
		t.Fatalf("NewOccupiableLeapArray: %v", err)
	}

	// Book 4 passes for the window starting at 1000 before it exists.
	o.Future.AddPass(1000, 4)
	if got := o.Future.PeekPass(500, 1000); got != 4 {
		t.Fatalf("expected booked pass visible before migration, got %d", got)
	}

	// Rolling the primary ring to t=1000 should absorb the booked debt.
	s := o.Primary.CurrentWindow(1000)
	if got := s.bucket.Pass(); got != 4 {
		t.Fatalf("expected migrated pass=4 in new primary bucket, got %d", got)
	}
	if got := o.Future.PeekPass(1000, 1000); got != 0 {
		t.Fatalf("future bucket should be cleared after migration, got %d", got)
	}
}
