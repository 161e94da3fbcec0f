package sctx

import "github.com/sluicelab/sluice/internal/node"

// Entry is a single in-flight admission: one node of the per-context call
// stack (spec.md §5). On creation its parent is the context's current
// entry, and it becomes the context's new current entry; Exit reverses
// that link.
type Entry struct {
	Resource node.ResourceKey

	chain      Chain
	ctx        *Context
	parent     *Entry
	child      *Entry
	CurNode    *node.DefaultNode
	OriginNode *node.StatNode

	CreateMillis int64
	Err          error

	pushed bool
	exited bool
}

// NewDetachedEntry builds an Entry bound to ctx but does not link it into
// ctx's stack yet: Push must be called before it becomes ctx.CurrentEntry.
// This lets a caller run the slot chain's admission decision against the
// Entry's CurNode/OriginNode first and only commit the entry to the call
// stack once it is actually admitted — a rejected entry is simply
// discarded, never touching the stack at all (spec.md §4: "if accepted an
// Entry handle is returned", implying a rejected one never enters the call
// tree it would otherwise have to be unwound from).
func NewDetachedEntry(ctx *Context, resource node.ResourceKey, chain Chain, curNode *node.DefaultNode, originNode *node.StatNode, nowMillis int64) *Entry {
	return &Entry{
		Resource:     resource,
		ctx:          ctx,
		chain:        chain,
		CurNode:      curNode,
		OriginNode:   originNode,
		CreateMillis: nowMillis,
	}
}

// Push links a detached Entry onto its context's stack, making it the
// context's current entry. A no-op on the null context's entries (they
// are never part of any stack). Calling Push twice, or on an Entry built
// via NewEntry (already pushed), is also a no-op.
func (e *Entry) Push() {
	if e.ctx == nil || e.ctx.isNull || e.pushed {
		return
	}
	e.parent = e.ctx.curEntry
	if e.parent != nil {
		e.parent.child = e
	}
	e.ctx.curEntry = e
	e.pushed = true
}

// NewEntry builds and immediately pushes a new Entry onto ctx's stack. If
// ctx is the null context, the returned Entry is itself inert: Exit on it
// is a no-op and no chain is ever invoked.
func NewEntry(ctx *Context, resource node.ResourceKey, chain Chain, curNode *node.DefaultNode, originNode *node.StatNode, nowMillis int64) *Entry {
	e := NewDetachedEntry(ctx, resource, chain, curNode, originNode, nowMillis)
	e.Push()
	return e
}

// NewAsyncEntry creates an Entry detached from ctx's synchronous stack: it
// runs against a fresh Context that shares ctx's name, origin and
// EntranceNode, so the caller's own call stack is never suspended waiting
// for the asynchronous work to exit (spec.md §5).
func NewAsyncEntry(ctx *Context, resource node.ResourceKey, chain Chain, curNode *node.DefaultNode, originNode *node.StatNode, nowMillis int64) *Entry {
	if ctx.isNull {
		return NewEntry(ctx, resource, chain, curNode, originNode, nowMillis)
	}
	detached := &Context{Name: ctx.Name, Origin: ctx.Origin, entrance: ctx.entrance}
	return NewEntry(detached, resource, chain, curNode, originNode, nowMillis)
}

// NewDetachedAsyncEntry is NewAsyncEntry's detached counterpart: it
// allocates the fresh per-call Context async entries need, but does not
// push the Entry onto it until Push is called.
func NewDetachedAsyncEntry(ctx *Context, resource node.ResourceKey, chain Chain, curNode *node.DefaultNode, originNode *node.StatNode, nowMillis int64) *Entry {
	if ctx.isNull {
		return NewDetachedEntry(ctx, resource, chain, curNode, originNode, nowMillis)
	}
	detached := &Context{Name: ctx.Name, Origin: ctx.Origin, entrance: ctx.entrance}
	return NewDetachedEntry(detached, resource, chain, curNode, originNode, nowMillis)
}

// Context returns the Context this entry is bound to — for an entry built
// by NewDetachedAsyncEntry/NewAsyncEntry this is the detached per-call
// Context, not the caller's original one, so callers driving the chain
// manually must run it against this Context rather than their own.
func (e *Entry) Context() *Context { return e.ctx }

// Parent returns the entry that was current when e was created, or nil if
// e rooted its context.
func (e *Entry) Parent() *Entry { return e.parent }

// Child returns the entry created while e was current, or nil.
func (e *Entry) Child() *Entry { return e.child }

// Exit releases e, running exit-slot bookkeeping through its chain. Exits
// must occur in LIFO order within a context; an out-of-order exit
// force-unwinds every entry above e (running their exit bookkeeping with
// no caller-supplied count or args, since the caller never released them
// directly) before unwinding e itself, then returns ErrEntryOrder.
func (e *Entry) Exit(count int64, args []any) error {
	if e == nil || e.ctx == nil || e.ctx.isNull || e.exited {
		return nil
	}
	if !e.pushed {
		// Never linked into the stack (a rejected entry built via
		// NewDetachedEntry that was discarded instead of pushed): there
		// is nothing to unwind and no chain bookkeeping to run.
		e.exited = true
		return nil
	}
	ctx := e.ctx

	if ctx.curEntry == e {
		e.doExit(count, args)
		ctx.curEntry = e.parent
		if e.parent != nil {
			e.parent.child = nil
		}
		return nil
	}

	cur := ctx.curEntry
	for cur != nil && cur != e {
		above := cur
		cur = cur.parent
		above.forceExit()
	}
	if cur == e {
		e.doExit(count, args)
	}
	ctx.curEntry = e.parent
	if e.parent != nil {
		e.parent.child = nil
	}
	return ErrEntryOrder
}

func (e *Entry) doExit(count int64, args []any) {
	if e.chain != nil {
		e.chain.Exit(e.ctx, e, count, args)
	}
	e.exited = true
}

func (e *Entry) forceExit() {
	e.doExit(1, nil)
}
