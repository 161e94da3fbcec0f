package sluice

import (
	"log"

	"github.com/sluicelab/sluice/internal/chain"
	"github.com/sluicelab/sluice/internal/flow"
	"github.com/sluicelab/sluice/internal/node"
	"github.com/sluicelab/sluice/internal/sctx"
)

// EntryDirection describes whether a resource represents inbound or
// outbound traffic; purely descriptive, it plays no part in identifying
// the resource.
type EntryDirection = node.EntryDirection

const (
	DirectionIn  = node.DirectionIn
	DirectionOut = node.DirectionOut
)

// Context is a task's current call context (spec.md §5): its name, the
// caller-supplied origin, and the in-flight Entry stack for everything
// entered through it. Unrelated call sites that enter the same context
// name share the same underlying call tree.
type Context struct {
	eng *Engine
	sc  *sctx.Context
}

// EnterContext returns the named context, creating it on first reference.
// Calling it again with the same name returns a handle onto the same
// underlying call tree.
func (e *Engine) EnterContext(name, origin string) *Context {
	return &Context{eng: e, sc: e.contexts.EnterContext(name, origin)}
}

// Name returns this context's name.
func (c *Context) Name() string { return c.sc.Name }

// Origin returns this context's caller-supplied origin.
func (c *Context) Origin() string { return c.sc.Origin }

// Entry is a single in-flight, admitted call (spec.md §4/§5). It is only
// ever returned for an admitted request — a rejected one returns a
// BlockedError instead and never gets an Entry handle at all.
type Entry struct {
	se *sctx.Entry
}

// Entry admits (or rejects) one call against resource. On success it
// returns an Entry that must be paired with exactly one Exit call. count is
// how many units of traffic this call represents (almost always 1);
// prioritized requests a priority wait instead of an immediate rejection
// where the governing rule supports it (spec.md §4.6's reject controller).
func (c *Context) Entry(resource string, direction EntryDirection, count int64, prioritized bool, args ...any) (*Entry, error) {
	return c.newEntry(resource, direction, count, prioritized, args, false)
}

// AsyncEntry is Entry's counterpart for work that outlives the calling
// task's own stack (spec.md §5): it runs against a fresh Context sharing
// this one's name, origin and entrance node, so the caller's own call stack
// is never suspended waiting for the asynchronous work's Exit.
func (c *Context) AsyncEntry(resource string, direction EntryDirection, count int64, prioritized bool, args ...any) (*Entry, error) {
	return c.newEntry(resource, direction, count, prioritized, args, true)
}

func (c *Context) newEntry(resourceName string, direction EntryDirection, count int64, prioritized bool, args []any, async bool) (*Entry, error) {
	resource := node.ResourceKey{Name: resourceName, Direction: direction}
	now := c.eng.clk.NowMillis()

	var curNode *node.DefaultNode
	var originNode *node.StatNode
	var ch sctx.Chain = chain.NoOpChain()
	if c.eng.cfg.GlobalOn {
		curNode, originNode, ch = c.resolveNode(resource)
	}

	var se *sctx.Entry
	if async {
		se = sctx.NewDetachedAsyncEntry(c.sc, resource, ch, curNode, originNode, now)
	} else {
		se = sctx.NewDetachedEntry(c.sc, resource, ch, curNode, originNode, now)
	}

	err := ch.Entry(se.Context(), se, count, prioritized, args)
	switch {
	case err == nil:
		se.Push()
		return &Entry{se: se}, nil
	case isPriorityWait(err):
		// Admitted after sleeping: the controller already did the waiting
		// before returning, so this call proceeds exactly like a plain
		// admit from here (spec.md §7).
		se.Push()
		return &Entry{se: se}, nil
	default:
		if be, ok := err.(*chain.BlockedError); ok {
			return nil, newBlockedError(be)
		}
		// An unrecognized slot error is a library bug, not a traffic
		// decision: never block the caller's own request on one.
		log.Printf("sluice: internal slot error for resource %q: %v", resourceName, err)
		se.Push()
		return &Entry{se: se}, nil
	}
}

// resolveNode resolves curNode/originNode/chain for resource against c's
// context. The null context (returned once the Engine's distinct-context
// cap is reached) never resolves real nodes — every entry against it is a
// transparent, unrecorded admit.
func (c *Context) resolveNode(resource node.ResourceKey) (*node.DefaultNode, *node.StatNode, sctx.Chain) {
	if c.sc.IsNull() {
		return nil, nil, chain.NoOpChain()
	}
	entrance := c.sc.EntranceNode()
	curNode := c.eng.graph.Child(entrance.DefaultNode, resource)
	var originNode *node.StatNode
	if c.sc.Origin != "" {
		originNode = c.eng.graph.ClusterNodeFor(resource).OriginNode(c.sc.Origin)
	}
	return curNode, originNode, c.eng.chains.ChainFor(resource)
}

func isPriorityWait(err error) bool {
	_, ok := err.(*flow.PriorityWaitSignal)
	return ok
}

// Exit releases e, running exit-slot bookkeeping (recording latency and
// decrementing the active-thread counter). count and args should match
// what was, or would have been, passed to the corresponding Entry call.
// Exits within one Context must occur in LIFO order; an out-of-order exit
// force-unwinds everything above it and returns ErrEntryOrder.
func (e *Entry) Exit(count int64, args ...any) error {
	return e.se.Exit(count, args)
}
