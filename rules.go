package sluice

import (
	"github.com/sluicelab/sluice/internal/chain"
	"github.com/sluicelab/sluice/internal/degrade"
	"github.com/sluicelab/sluice/internal/flow"
	"github.com/sluicelab/sluice/internal/node"
)

// FlowGrade selects what a FlowRule measures traffic against.
type FlowGrade int

const (
	GradeQPS    FlowGrade = FlowGrade(flow.GradeQPS)
	GradeThread FlowGrade = FlowGrade(flow.GradeThread)
)

// FlowStrategy selects which node a FlowRule is checked against.
type FlowStrategy int

const (
	StrategyDirect FlowStrategy = FlowStrategy(flow.StrategyDirect)
	StrategyRelate FlowStrategy = FlowStrategy(flow.StrategyRelate)
	StrategyChain  FlowStrategy = FlowStrategy(flow.StrategyChain)
)

// FlowBehavior selects the admission algorithm a FlowRule uses once its
// node is chosen.
type FlowBehavior int

const (
	BehaviorReject            FlowBehavior = FlowBehavior(flow.BehaviorReject)
	BehaviorWarmUp            FlowBehavior = FlowBehavior(flow.BehaviorWarmUp)
	BehaviorRateLimiter       FlowBehavior = FlowBehavior(flow.BehaviorRateLimiter)
	BehaviorWarmUpRateLimiter FlowBehavior = FlowBehavior(flow.BehaviorWarmUpRateLimiter)
)

const (
	// LimitOriginDefault targets the resource's ClusterNode.
	LimitOriginDefault = flow.LimitOriginDefault
	// LimitOriginOther checks the calling origin's own origin node, for
	// every non-empty origin; whether another rule for the same resource
	// names that origin is not checked.
	LimitOriginOther = flow.LimitOriginOther
)

// FlowRule is one flow-control rule (spec.md §3's FlowRule), keyed by
// resource name.
type FlowRule struct {
	Resource    string
	Count       float64
	Grade       FlowGrade
	Strategy    FlowStrategy
	RefResource string
	LimitOrigin string
	Behavior    FlowBehavior
	Prioritized bool

	WarmUpSeconds int64
	ColdFactor    float64
	MaxQueueMs    int64
	OccupyTimeout int64

	// ClusterMode, when set, delegates this rule's admission decision to
	// the Engine's cluster.TokenService instead of a local controller
	// (spec.md §4.8); requires EnableClusterMode to have been called.
	ClusterMode   bool
	ClusterFlowID uint64
}

// DegradeGrade selects what a DegradeRule trips its circuit breaker on.
type DegradeGrade int

const (
	GradeAvgRT          DegradeGrade = DegradeGrade(degrade.GradeAvgRT)
	GradeExceptionRatio DegradeGrade = DegradeGrade(degrade.GradeExceptionRatio)
	GradeExceptionCount DegradeGrade = DegradeGrade(degrade.GradeExceptionCount)
)

// DegradeRule is one circuit-breaker rule (spec.md §4.7), keyed by resource
// name.
type DegradeRule struct {
	Resource            string
	Grade               DegradeGrade
	Count               float64
	TimeWindowSec       int64
	RTSlowRequestAmount int64
	MinRequestAmount    int64
}

// AuthorityStrategy selects whether an AuthorityRule's origin list is an
// allow list or a deny list.
type AuthorityStrategy int

const (
	AuthorityAllow AuthorityStrategy = AuthorityStrategy(chain.AuthorityAllow)
	AuthorityDeny  AuthorityStrategy = AuthorityStrategy(chain.AuthorityDeny)
)

// AuthorityRule restricts which call origins may reach a resource.
type AuthorityRule struct {
	Resource string
	Strategy AuthorityStrategy
	Origins  []string
}

func toInternalFlowRules(in []*FlowRule) []*flow.Rule {
	out := make([]*flow.Rule, 0, len(in))
	for _, r := range in {
		out = append(out, &flow.Rule{
			Resource:      node.ResourceKey{Name: r.Resource},
			Count:         r.Count,
			Grade:         flow.Grade(r.Grade),
			Strategy:      flow.Strategy(r.Strategy),
			RefResource:   node.ResourceKey{Name: r.RefResource},
			LimitOrigin:   r.LimitOrigin,
			Behavior:      flow.Behavior(r.Behavior),
			Prioritized:   r.Prioritized,
			WarmUpSeconds: r.WarmUpSeconds,
			ColdFactor:    r.ColdFactor,
			MaxQueueMs:    r.MaxQueueMs,
			OccupyTimeout: r.OccupyTimeout,
			ClusterMode:   r.ClusterMode,
			ClusterFlowID: r.ClusterFlowID,
		})
	}
	return out
}

func toInternalDegradeRules(in []*DegradeRule) []*degrade.Rule {
	out := make([]*degrade.Rule, 0, len(in))
	for _, r := range in {
		out = append(out, &degrade.Rule{
			Resource:            node.ResourceKey{Name: r.Resource},
			Grade:               degrade.Grade(r.Grade),
			Count:               r.Count,
			TimeWindowSec:       r.TimeWindowSec,
			RTSlowRequestAmount: r.RTSlowRequestAmount,
			MinRequestAmount:    r.MinRequestAmount,
		})
	}
	return out
}

func toInternalAuthorityRules(in []*AuthorityRule) []*chain.AuthorityRule {
	out := make([]*chain.AuthorityRule, 0, len(in))
	for _, r := range in {
		out = append(out, chain.NewAuthorityRule(node.ResourceKey{Name: r.Resource}, chain.AuthorityStrategy(r.Strategy), r.Origins))
	}
	return out
}
