package node

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/sluicelab/sluice/internal/clock"
)

// Graph is the process-wide registry wiring resource names to their
// ClusterNode and context names to their EntranceNode. It is the entry
// point sctx and chain use to grow the call tree.
type Graph struct {
	clk clock.Clock

	clusters  *xsync.Map[string, *ClusterNode]
	entrances *xsync.Map[string, *EntranceNode]

	globalInboundOnce sync.Once
	globalInbound     *StatNode
}

// NewGraph creates an empty registry driven by clk. Production code uses
// clock.Default; tests inject a clock.Mock so window arithmetic is
// deterministic.
func NewGraph(clk clock.Clock) *Graph {
	if clk == nil {
		clk = clock.Default
	}
	return &Graph{
		clk:       clk,
		clusters:  xsync.NewMap[string, *ClusterNode](),
		entrances: xsync.NewMap[string, *EntranceNode](),
	}
}

// ClusterNodeFor returns (creating if absent) the singleton ClusterNode for
// key. Safe for concurrent use; only one ClusterNode is ever created per
// resource name even under a creation race.
func (g *Graph) ClusterNodeFor(key ResourceKey) *ClusterNode {
	if cn, ok := g.clusters.Load(key.Name); ok {
		return cn
	}
	cn := newClusterNode(g.clk, key)
	actual, _ := g.clusters.LoadOrStore(key.Name, cn)
	return actual
}

// EntranceNodeFor returns (creating if absent) the EntranceNode rooting
// contextName's call tree. The entrance's own ClusterNode is keyed by the
// context name itself, mirroring how a served endpoint is also a resource.
func (g *Graph) EntranceNodeFor(contextName string) *EntranceNode {
	if en, ok := g.entrances.Load(contextName); ok {
		return en
	}
	cluster := g.ClusterNodeFor(ResourceKey{Name: contextName, Direction: DirectionIn})
	en := newEntranceNode(g.clk, contextName, cluster)
	actual, _ := g.entrances.LoadOrStore(contextName, en)
	return actual
}

// Child returns (creating if absent) the DefaultNode for childKey beneath
// parent, wired to childKey's ClusterNode.
func (g *Graph) Child(parent *DefaultNode, childKey ResourceKey) *DefaultNode {
	cluster := g.ClusterNodeFor(childKey)
	return parent.GetOrAddChild(g.clk, childKey, cluster)
}

// GlobalInbound returns the single process-wide StatNode aggregating every
// IN-direction resource's traffic (spec.md §2/§3's "global in-bound node").
// The System slot checks its ceilings against this node rather than any one
// resource's own counters, since a system-protection rule is meant to shed
// load once total inbound traffic is overloaded, independent of which
// resource happens to be hot.
func (g *Graph) GlobalInbound() *StatNode {
	g.globalInboundOnce.Do(func() {
		g.globalInbound = NewStatNode(g.clk)
	})
	return g.globalInbound
}

// Resources returns a snapshot of every resource name with a live
// ClusterNode, for diagnostics and rule-loading validation.
func (g *Graph) Resources() []string {
	out := make([]string, 0)
	g.clusters.Range(func(k string, _ *ClusterNode) bool {
		out = append(out, k)
		return true
	})
	return out
}

// PruneIdle drops ClusterNode entries that have recorded no counter
// activity in the last idleMillis and currently have no in-flight
// threads, bounding the resource map's size in long-running processes
// (spec.md §5/§9's "resource lifetime" note — deletion is never required
// for correctness, but is allowed). A DefaultNode that still holds a
// reference to a pruned ClusterNode keeps working against that instance;
// the next fresh lookup for the same resource name simply builds a new
// one. Returns the number of resources pruned.
func (g *Graph) PruneIdle(now, idleMillis int64) int {
	var pruned int
	g.clusters.Range(func(k string, cn *ClusterNode) bool {
		if cn.CurrentThreads() > 0 {
			return true
		}
		if now-cn.LastFetchMillis() < idleMillis {
			return true
		}
		g.clusters.Delete(k)
		pruned++
		return true
	})
	return pruned
}
