// Package chain wires node, sctx, flow and degrade into the fixed
// per-resource slot pipeline of spec.md §4.5: LogSlot, StatisticSlot,
// Authority, System, Flow, Degrade (NodeSelector/ClusterBuilder are
// performed by the caller before an sctx.Entry exists, since curNode and
// originNode are already fields on sctx.Entry by the time a chain runs).
package chain

import (
	"fmt"

	"github.com/sluicelab/sluice/internal/node"
)

// Cause identifies which slot blocked an entry.
type Cause int

const (
	CauseFlow Cause = iota
	CauseDegrade
	CauseAuthority
	CauseSystem
)

func (c Cause) String() string {
	switch c {
	case CauseFlow:
		return "Flow"
	case CauseDegrade:
		return "Degrade"
	case CauseAuthority:
		return "Authority"
	case CauseSystem:
		return "System"
	default:
		return "Unknown"
	}
}

// BlockedError is the rule-driven admission denial raised at the entry
// call (spec.md §7.1).
type BlockedError struct {
	Resource node.ResourceKey
	Cause    Cause
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("chain: %s blocked resource %q", e.Cause, e.Resource.Name)
}
