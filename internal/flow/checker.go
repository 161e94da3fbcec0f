package flow

import (
	"context"

	"github.com/sluicelab/sluice/internal/cluster"
	"github.com/sluicelab/sluice/internal/node"
	"github.com/sluicelab/sluice/internal/sctx"
)

// ClusterClient is the subset of cluster.Client a Checker needs to
// delegate a cluster-mode rule's admission decision to a remote or
// embedded TokenService (spec.md §4.8).
type ClusterClient interface {
	CanPass(ctx context.Context, req cluster.Request, localFallback func() bool) (bool, error)
}

// Checker resolves a Rule against the current call's context and node
// graph, selecting the node to check and the controller to run against it
// (spec.md §4.5.2).
type Checker struct {
	Graph   *node.Graph
	Cluster ClusterClient // nil disables cluster-mode delegation
}

// NewChecker builds a Checker backed by graph.
func NewChecker(graph *node.Graph) *Checker {
	return &Checker{Graph: graph}
}

// CanPass evaluates rule for one entry. A CHAIN-strategy rule outside its
// own call chain selects no node and always passes.
func (c *Checker) CanPass(now int64, rule *Rule, ctx *sctx.Context, curNode *node.DefaultNode, acquireCount int64, prioritized bool) (bool, error) {
	if rule.Strategy == StrategyChain {
		if ctx.Name != rule.RefResource.Name {
			return true, nil
		}
		return rule.Controller().CanPass(now, curNode, acquireCount, prioritized)
	}

	src := c.selectSource(rule, ctx, curNode)
	if src == nil {
		return true, nil
	}

	if rule.ClusterMode && c.Cluster != nil {
		return c.canPassCluster(now, rule, ctx, src, acquireCount, prioritized)
	}
	return rule.Controller().CanPass(now, src, acquireCount, prioritized)
}

// canPassCluster delegates to the configured TokenService, falling back to
// the equivalent local controller only if the remote call itself fails
// (spec.md §4.8's client behavior). The PriorityWaitSignal nuance of the
// local reject controller doesn't surface through cluster mode: a
// SHOULD_WAIT response is a plain admit from the caller's perspective,
// since the sleep already happened inside Client.CanPass.
func (c *Checker) canPassCluster(now int64, rule *Rule, ctx *sctx.Context, src StatSource, acquireCount int64, prioritized bool) (bool, error) {
	req := cluster.NewRequest(rule.ClusterFlowID, ctx.Origin, acquireCount, prioritized)
	localFallback := func() bool {
		ok, _ := rule.Controller().CanPass(now, src, acquireCount, prioritized)
		return ok
	}
	return c.Cluster.CanPass(context.Background(), req, localFallback)
}

func (c *Checker) selectSource(rule *Rule, ctx *sctx.Context, curNode *node.DefaultNode) StatSource {
	var chosen StatSource
	switch rule.LimitOrigin {
	case "", LimitOriginDefault:
		chosen = c.Graph.ClusterNodeFor(rule.Resource)
	case LimitOriginOther:
		on := c.Graph.ClusterNodeFor(rule.Resource).OriginNode(ctx.Origin)
		if on == nil {
			return nil
		}
		chosen = on
	default:
		if rule.LimitOrigin != ctx.Origin {
			return nil
		}
		chosen = c.Graph.ClusterNodeFor(rule.Resource).OriginNode(ctx.Origin)
	}

	if rule.Strategy == StrategyRelate {
		return c.Graph.ClusterNodeFor(rule.RefResource)
	}
	return chosen
}
