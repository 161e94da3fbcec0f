// Package flow implements FlowRule matching and the four
// TrafficShapingController variants (spec.md §4.6).
package flow

import (
	"sync"

	"github.com/sluicelab/sluice/internal/node"
)

// Grade selects what a controller measures traffic against.
type Grade int

const (
	// GradeQPS measures admitted requests per second.
	GradeQPS Grade = iota
	// GradeThread measures concurrently in-flight requests.
	GradeThread
)

// Strategy selects which node a rule is checked against.
type Strategy int

const (
	// StrategyDirect checks the node selected by limitOrigin handling.
	StrategyDirect Strategy = iota
	// StrategyRelate checks the ClusterNode of a different resource.
	StrategyRelate
	// StrategyChain checks curNode only when the calling context's own
	// name equals the rule's reference resource (call-chain shaping).
	StrategyChain
)

// Behavior selects the admission algorithm a rule uses once its node is
// chosen.
type Behavior int

const (
	// BehaviorReject is the fixed-threshold reject-on-exceed controller.
	BehaviorReject Behavior = iota
	// BehaviorWarmUp is the token-bucket warm-up controller.
	BehaviorWarmUp
	// BehaviorRateLimiter is the leaky-bucket pacing controller.
	BehaviorRateLimiter
	// BehaviorWarmUpRateLimiter composes warm-up with pacing.
	BehaviorWarmUpRateLimiter
)

const (
	// LimitOriginDefault targets the resource's ClusterNode.
	LimitOriginDefault = "default"
	// LimitOriginOther checks the calling origin's own origin node, for
	// every non-empty origin; whether another rule for the same resource
	// names that origin is not checked.
	LimitOriginOther = "other"
)

// Rule is one flow-control rule: spec.md §3's FlowRule.
type Rule struct {
	Resource     node.ResourceKey
	Count        float64
	Grade        Grade
	Strategy     Strategy
	RefResource  node.ResourceKey
	LimitOrigin  string // empty means "no origin restriction"
	Behavior     Behavior
	Prioritized  bool

	WarmUpSeconds  int64
	ColdFactor     float64
	MaxQueueMs     int64
	OccupyTimeout  int64

	// ClusterMode, when set, delegates canPass to a cluster TokenService
	// instead of a local TrafficShapingController (spec.md §4.8).
	ClusterMode    bool
	ClusterFlowID  uint64

	controllerOnce sync.Once
	controller     Controller
}

// Controller returns this rule's TrafficShapingController, building it
// once on first use and reusing that same instance for the rule's
// lifetime. The pacing/warm-up controllers hold atomic state
// (latestPassedMillis, storedTokens, lastFillMillis) that must persist
// across admission checks; a fresh controller per call would reset that
// state every time and defeat pacing/warm-up entirely.
func (r *Rule) Controller() Controller {
	r.controllerOnce.Do(func() {
		switch r.Behavior {
		case BehaviorWarmUp:
			r.controller = NewWarmUpController(r.Count, r.WarmUpSeconds, r.ColdFactor)
		case BehaviorRateLimiter:
			r.controller = NewRateLimiterController(r.Count, r.MaxQueueMs)
		case BehaviorWarmUpRateLimiter:
			r.controller = NewWarmUpRateLimiterController(r.Count, r.WarmUpSeconds, r.ColdFactor, r.MaxQueueMs)
		default:
			r.controller = NewRejectController(r.Count, r.Grade, r.OccupyTimeout)
		}
	})
	return r.controller
}
