package sctx

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/sluicelab/sluice/internal/node"
)

// Manager owns the registry of named contexts, backed by a node.Graph for
// EntranceNode lookup, and enforces the configured distinct-context cap.
type Manager struct {
	graph       *node.Graph
	contexts    *xsync.Map[string, *Context]
	count       atomic.Int64
	maxContext  int64
	nullContext *Context
}

// NewManager creates a Manager. maxContext is the cap on distinct context
// names (spec.md §6's maxContext knob); once reached, EnterContext returns
// the shared null context instead of growing the registry further.
func NewManager(graph *node.Graph, maxContext int64) *Manager {
	return &Manager{
		graph:       graph,
		contexts:    xsync.NewMap[string, *Context](),
		maxContext:  maxContext,
		nullContext: &Context{isNull: true},
	}
}

// EnterContext returns the named context, creating it (and its
// EntranceNode) on first reference. Calling it again with the same name is
// idempotent: it returns the same Context rather than creating a nested
// one, so unrelated call sites entering "the same logical task" by name
// converge on one call tree (spec.md §5).
func (m *Manager) EnterContext(name, origin string) *Context {
	if len(name) > MaxContextNameLength {
		name = name[:MaxContextNameLength]
	}
	if ctx, ok := m.contexts.Load(name); ok {
		return ctx
	}
	if m.count.Load() >= m.maxContext {
		return m.nullContext
	}

	entrance := m.graph.EntranceNodeFor(name)
	ctx := &Context{Name: name, Origin: origin, entrance: entrance}
	actual, loaded := m.contexts.LoadOrStore(name, ctx)
	if !loaded {
		m.count.Add(1)
	}
	return actual
}

// NullContext returns the sentinel context used once the distinct-context
// cap is reached.
func (m *Manager) NullContext() *Context { return m.nullContext }

// Count returns the number of distinct context names currently tracked.
func (m *Manager) Count() int64 { return m.count.Load() }
