package cluster

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/sluicelab/sluice/internal/clock"
	"github.com/sluicelab/sluice/internal/stat"
)

// RuleConfig is one rule as known to the embedded token Server: spec.md
// §4.8's per-rule sliding-window metric plus its threshold type.
type RuleConfig struct {
	FlowID        uint64
	ThresholdType ThresholdType
	Count         float64

	// OccupyMaxRatio caps how much of Count a prioritized caller may
	// borrow from future windows, as a fraction (spec.md §6's
	// occupy.maxRatio knob). Zero means "use 1.0".
	OccupyMaxRatio float64
}

type ruleState struct {
	cfg    RuleConfig
	metric *stat.Metric
}

// flowClients records every distinct ClientID that has requested a token for
// one flow, used by ThresholdAvgLocal to scale Count by that number. Entries
// are never expired, so a client that has gone away is still counted.
type flowClients struct {
	mu   sync.Mutex
	seen map[string]int64
}

func (f *flowClients) touch(clientID string, nowMillis int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[string]int64)
	}
	f.seen[clientID] = nowMillis
	return len(f.seen)
}

// Server is the in-process embedded TokenService implementation: each
// rule's admission state is its own second-grained occupiable Metric, the
// same ring-buffer machinery StatNode uses locally. There is no
// namespace-wide request limiter: admission is decided per rule only, and
// StatusTooManyRequest is never returned.
type Server struct {
	clk     clock.Clock
	rules   *xsync.Map[uint64, *ruleState]
	clients *xsync.Map[uint64, *flowClients]
}

// NewServer creates an empty embedded token Server driven by clk.
func NewServer(clk clock.Clock) *Server {
	if clk == nil {
		clk = clock.Default
	}
	return &Server{
		clk:     clk,
		rules:   xsync.NewMap[uint64, *ruleState](),
		clients: xsync.NewMap[uint64, *flowClients](),
	}
}

// RegisterRule installs (or replaces) the admission state for one
// cluster-mode flow. Replacing a rule resets its sliding window.
func (s *Server) RegisterRule(cfg RuleConfig) error {
	m, err := stat.NewMetric(s.clk, 2, 1000, true)
	if err != nil {
		return err
	}
	s.rules.Store(cfg.FlowID, &ruleState{cfg: cfg, metric: m})
	return nil
}

// RequestToken implements TokenService for the embedded server (spec.md
// §4.8).
func (s *Server) RequestToken(_ context.Context, req Request) (TokenResult, error) {
	if req.AcquireCount <= 0 {
		return TokenResult{Status: StatusBadRequest}, nil
	}
	rs, ok := s.rules.Load(req.FlowID)
	if !ok {
		return TokenResult{Status: StatusNoRuleExists}, nil
	}

	clients, ok := s.clients.Load(req.FlowID)
	if !ok {
		clients, _ = s.clients.LoadOrStore(req.FlowID, &flowClients{})
	}
	connected := clients.touch(req.ClientID, s.clk.NowMillis())

	threshold := rs.cfg.Count
	if rs.cfg.ThresholdType == ThresholdAvgLocal {
		threshold = rs.cfg.Count * float64(connected)
	}

	windowSeconds := rs.metric.IntervalSeconds()
	maxPerInterval := threshold * windowSeconds
	used := rs.metric.Pass()

	if float64(used)+float64(req.AcquireCount) <= maxPerInterval {
		rs.metric.AddPass(req.AcquireCount)
		remaining := int64(maxPerInterval) - used - req.AcquireCount
		return TokenResult{Status: StatusOK, Remaining: remaining}, nil
	}

	if !req.Prioritized {
		return TokenResult{Status: StatusBlocked}, nil
	}

	ratio := rs.cfg.OccupyMaxRatio
	if ratio <= 0 {
		ratio = 1.0
	}
	borrowed := rs.metric.Waiting()
	if float64(borrowed)+float64(req.AcquireCount) > maxPerInterval*ratio {
		return TokenResult{Status: StatusBlocked}, nil
	}

	waitMs := rs.metric.WindowLengthMillis()
	rs.metric.AddWaiting(s.clk.NowMillis()+waitMs, req.AcquireCount)
	return TokenResult{Status: StatusShouldWait, WaitMs: waitMs}, nil
}
