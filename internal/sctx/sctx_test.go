package sctx

import (
	"testing"

	"github.com/sluicelab/sluice/internal/clock"
	"github.com/sluicelab/sluice/internal/node"
)

type recordingChain struct {
	entries []string
	exits   []string
}

func (c *recordingChain) Entry(ctx *Context, e *Entry, count int64, prioritized bool, args []any) error {
	c.entries = append(c.entries, e.Resource.Name)
	return nil
}

func (c *recordingChain) Exit(ctx *Context, e *Entry, count int64, args []any) {
	c.exits = append(c.exits, e.Resource.Name)
}

func newTestManager() (*Manager, *node.Graph) {
	mc := clock.NewMock(0)
	g := node.NewGraph(mc)
	return NewManager(g, 2000), g
}

func TestManager_EnterContext_Idempotent(t *testing.T) {
	m, _ := newTestManager()
	a := m.EnterContext("task-1", "")
	b := m.EnterContext("task-1", "")
	if a != b {
		t.Fatalf("expected same Context for repeated EnterContext with same name")
	}
}

func TestManager_EnterContext_NullBeyondCap(t *testing.T) {
	m, _ := newTestManager()
	m.maxContext = 1
	a := m.EnterContext("only-one", "")
	if a.IsNull() {
		t.Fatalf("first context under cap must not be null")
	}
	b := m.EnterContext("second", "")
	if !b.IsNull() {
		t.Fatalf("expected null context once cap is reached")
	}
}

func TestEntry_LIFO_ExitUnwindsStack(t *testing.T) {
	m, g := newTestManager()
	ctx := m.EnterContext("e1", "")
	ch := &recordingChain{}

	a := NewEntry(ctx, node.ResourceKey{Name: "A"}, ch, g.Child(ctx.EntranceNode().DefaultNode, node.ResourceKey{Name: "A"}), nil, 0)
	b := NewEntry(ctx, node.ResourceKey{Name: "B"}, ch, g.Child(a.CurNode, node.ResourceKey{Name: "B"}), nil, 0)

	if ctx.CurrentEntry() != b {
		t.Fatalf("expected B to be current entry")
	}
	if err := b.Exit(1, nil); err != nil {
		t.Fatalf("in-order exit of B: %v", err)
	}
	if ctx.CurrentEntry() != a {
		t.Fatalf("expected A to be current entry after B exits")
	}
	if err := a.Exit(1, nil); err != nil {
		t.Fatalf("in-order exit of A: %v", err)
	}
	if ctx.CurrentEntry() != nil {
		t.Fatalf("expected empty stack after both entries exit")
	}
	if len(ch.exits) != 2 || ch.exits[0] != "B" || ch.exits[1] != "A" {
		t.Fatalf("expected exit order [B A], got %v", ch.exits)
	}
}

func TestEntry_OutOfOrderExit_ForceUnwindsAndRaises(t *testing.T) {
	m, g := newTestManager()
	ctx := m.EnterContext("e2", "")
	ch := &recordingChain{}

	a := NewEntry(ctx, node.ResourceKey{Name: "A"}, ch, g.Child(ctx.EntranceNode().DefaultNode, node.ResourceKey{Name: "A"}), nil, 0)
	b := NewEntry(ctx, node.ResourceKey{Name: "B"}, ch, g.Child(a.CurNode, node.ResourceKey{Name: "B"}), nil, 0)
	c := NewEntry(ctx, node.ResourceKey{Name: "C"}, ch, g.Child(b.CurNode, node.ResourceKey{Name: "C"}), nil, 0)

	// Exit A first, while B and C are still open: out of LIFO order.
	err := a.Exit(1, nil)
	if err != ErrEntryOrder {
		t.Fatalf("expected ErrEntryOrder, got %v", err)
	}
	if ctx.CurrentEntry() != nil {
		t.Fatalf("expected stack fully unwound after out-of-order exit of root entry")
	}
	if len(ch.exits) != 3 || ch.exits[0] != "C" || ch.exits[1] != "B" || ch.exits[2] != "A" {
		t.Fatalf("expected force-unwind exit order [C B A], got %v", ch.exits)
	}
}

func TestNewAsyncEntry_DoesNotAffectCallerStack(t *testing.T) {
	m, g := newTestManager()
	ctx := m.EnterContext("e3", "")
	ch := &recordingChain{}

	a := NewEntry(ctx, node.ResourceKey{Name: "A"}, ch, g.Child(ctx.EntranceNode().DefaultNode, node.ResourceKey{Name: "A"}), nil, 0)
	asyncEntry := NewAsyncEntry(ctx, node.ResourceKey{Name: "Async"}, ch, g.Child(ctx.EntranceNode().DefaultNode, node.ResourceKey{Name: "Async"}), nil, 0)

	if ctx.CurrentEntry() != a {
		t.Fatalf("async entry must not become the caller context's current entry")
	}
	if err := asyncEntry.Exit(1, nil); err != nil {
		t.Fatalf("async entry exit: %v", err)
	}
	if ctx.CurrentEntry() != a {
		t.Fatalf("exiting the async entry must not disturb the caller's stack")
	}
	_ = a.Exit(1, nil)
}
