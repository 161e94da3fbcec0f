package clock

import "sync/atomic"

// Mock is a Clock whose value is set explicitly, for deterministic tests of
// window boundaries, warm-up ramps, and breaker reset timing.
type Mock struct {
	millis atomic.Int64
}

// NewMock creates a Mock starting at the given millisecond timestamp.
func NewMock(startMillis int64) *Mock {
	m := &Mock{}
	m.millis.Store(startMillis)
	return m
}

// NowMillis implements Clock.
func (m *Mock) NowMillis() int64 {
	return m.millis.Load()
}

// Set moves the clock to an absolute timestamp. Callers must never move it
// backward; LeapArray and the controllers treat regression as a no-op, which
// would make such a test silently meaningless.
func (m *Mock) Set(millis int64) {
	m.millis.Store(millis)
}

// Advance moves the clock forward by the given number of milliseconds and
// returns the new value.
func (m *Mock) Advance(deltaMillis int64) int64 {
	return m.millis.Add(deltaMillis)
}
