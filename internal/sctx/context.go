// Package sctx implements the task-local call context and entry stack:
// spec.md §5's CallContext / Entry model. Go has no implicit thread-local
// storage, so Context is an explicit handle the caller threads through a
// call rather than ambient state — the same choice the standard library
// makes with context.Context.
package sctx

import (
	"errors"

	"github.com/sluicelab/sluice/internal/node"
)

// MaxContextNameLength bounds context names (spec.md §5).
const MaxContextNameLength = 2000

// ErrEntryOrder is raised when Entry.Exit is called out of LIFO order. The
// mismatched entry and everything above it are force-unwound before this
// is returned; it always signals a caller bug, never a traffic decision.
var ErrEntryOrder = errors.New("sctx: entries must exit in LIFO order")

// Chain is the slot-chain pipeline a resource's entries run through. It is
// declared here, not in package chain, so that chain can depend on sctx
// without sctx depending back on chain.
type Chain interface {
	Entry(ctx *Context, e *Entry, count int64, prioritized bool, args []any) error
	Exit(ctx *Context, e *Entry, count int64, args []any)
}

// Context is a task's current call context: its name, the caller-supplied
// origin, the EntranceNode rooting its call tree, and the top of its
// in-flight Entry stack. Multiple tasks entering the same context name
// share the same EntranceNode (spec.md §5).
type Context struct {
	Name     string
	Origin   string
	entrance *node.EntranceNode
	curEntry *Entry
	isNull   bool
}

// EntranceNode returns the call-tree root backing this context.
func (c *Context) EntranceNode() *node.EntranceNode { return c.entrance }

// CurrentEntry returns the top of this context's Entry stack, or nil.
func (c *Context) CurrentEntry() *Entry { return c.curEntry }

// IsNull reports whether this is the sentinel context returned once a
// Manager's distinct-context cap has been reached. Entries created against
// a null context are themselves null and skip all slot-chain processing.
func (c *Context) IsNull() bool { return c.isNull }
