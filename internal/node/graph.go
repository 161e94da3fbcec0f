package node

import (
	"sync"

	"github.com/maypok86/otter"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/sluicelab/sluice/internal/clock"
)

// maxOriginNodesPerResource bounds ClusterNode.originNodes so a resource
// fed by unboundedly many distinct callers (spec.md §3's "originNodes:
// mapping from callerId → StatNode") cannot leak memory; evicted callers
// simply get a fresh origin StatNode on their next call, which only costs
// one warm-up window of statistics.
const maxOriginNodesPerResource = 4096

// ClusterNode is the single process-global StatNode for a ResourceKey,
// created lazily on first reference. It additionally tracks a bounded set
// of per-caller origin StatNodes.
type ClusterNode struct {
	*StatNode
	Key ResourceKey

	mu          sync.Mutex
	originNodes otter.Cache[string, *StatNode]
	clk         clock.Clock
}

func newClusterNode(clk clock.Clock, key ResourceKey) *ClusterNode {
	cache, err := otter.MustBuilder[string, *StatNode](maxOriginNodesPerResource).
		Cost(func(_ string, _ *StatNode) uint32 { return 1 }).
		Build()
	if err != nil {
		panic("node: failed to create origin node cache: " + err.Error())
	}
	return &ClusterNode{
		StatNode:    NewStatNode(clk),
		Key:         key,
		originNodes: cache,
		clk:         clk,
	}
}

// OriginNode returns (creating if absent) the leaf StatNode tracking
// traffic attributed to the given caller/origin. Origin nodes are leaves:
// writes to them never propagate further (spec.md §4.4).
func (c *ClusterNode) OriginNode(callerID string) *StatNode {
	if callerID == "" {
		return nil
	}
	if sn, ok := c.originNodes.Get(callerID); ok {
		return sn
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if sn, ok := c.originNodes.Get(callerID); ok {
		return sn
	}
	sn := NewStatNode(c.clk)
	c.originNodes.Set(callerID, sn)
	return sn
}

// DefaultNode is the per-(context, resource) StatNode. It owns the set of
// child DefaultNodes that make up the per-context call tree, and a
// back-reference to its resource's ClusterNode. Writes to a DefaultNode
// always propagate to its ClusterNode.
type DefaultNode struct {
	*StatNode
	Key     ResourceKey
	Cluster *ClusterNode

	children *xsync.Map[string, *DefaultNode]
}

func newDefaultNode(clk clock.Clock, key ResourceKey, cluster *ClusterNode) *DefaultNode {
	return &DefaultNode{
		StatNode: NewStatNode(clk),
		Key:      key,
		Cluster:  cluster,
		children: xsync.NewMap[string, *DefaultNode](),
	}
}

// GetOrAddChild returns the child DefaultNode for childKey under this node,
// creating (and wiring to childCluster) it on first reference.
func (d *DefaultNode) GetOrAddChild(clk clock.Clock, childKey ResourceKey, childCluster *ClusterNode) *DefaultNode {
	if existing, ok := d.children.Load(childKey.Name); ok {
		return existing
	}
	child := newDefaultNode(clk, childKey, childCluster)
	actual, _ := d.children.LoadOrStore(childKey.Name, child)
	return actual
}

// Children returns a snapshot of this node's direct children, for
// diagnostics and tests (spec.md §8 scenario 6).
func (d *DefaultNode) Children() []*DefaultNode {
	out := make([]*DefaultNode, 0)
	d.children.Range(func(_ string, v *DefaultNode) bool {
		out = append(out, v)
		return true
	})
	return out
}

// AddPassRequest, AddRtAndSuccess, IncreaseBlockQps, IncreaseExceptionQps,
// IncreaseThreadNum, DecreaseThreadNum and AddOccupiedPassRequest implement
// DefaultNode's propagating mutators (spec.md §4.4): every write lands on
// this node and is mirrored onto the resource's ClusterNode.
func (d *DefaultNode) AddPassRequest(count int64) {
	d.StatNode.AddPassRequest(count)
	d.Cluster.AddPassRequest(count)
}

func (d *DefaultNode) AddRtAndSuccess(rtMs, count int64) {
	d.StatNode.AddRtAndSuccess(rtMs, count)
	d.Cluster.AddRtAndSuccess(rtMs, count)
}

func (d *DefaultNode) IncreaseBlockQps(count int64) {
	d.StatNode.IncreaseBlockQps(count)
	d.Cluster.IncreaseBlockQps(count)
}

func (d *DefaultNode) IncreaseExceptionQps(count int64) {
	d.StatNode.IncreaseExceptionQps(count)
	d.Cluster.IncreaseExceptionQps(count)
}

func (d *DefaultNode) AddOccupiedPassRequest(count int64) {
	d.StatNode.AddOccupiedPassRequest(count)
	d.Cluster.AddOccupiedPassRequest(count)
}

func (d *DefaultNode) IncreaseThreadNum() {
	d.StatNode.IncreaseThreadNum()
	d.Cluster.IncreaseThreadNum()
}

func (d *DefaultNode) DecreaseThreadNum() {
	d.StatNode.DecreaseThreadNum()
	d.Cluster.DecreaseThreadNum()
}

// EntranceNode is the root DefaultNode of one named context's call tree.
type EntranceNode struct {
	*DefaultNode
	ContextName string
}

func newEntranceNode(clk clock.Clock, contextName string, cluster *ClusterNode) *EntranceNode {
	key := ResourceKey{Name: contextName, Direction: DirectionIn}
	return &EntranceNode{
		DefaultNode: newDefaultNode(clk, key, cluster),
		ContextName: contextName,
	}
}
