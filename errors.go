package sluice

import (
	"fmt"

	"github.com/sluicelab/sluice/internal/chain"
	"github.com/sluicelab/sluice/internal/sctx"
)

// Cause identifies which slot rejected an entry (spec.md §6/§7).
type Cause int

const (
	CauseFlow      = Cause(chain.CauseFlow)
	CauseDegrade   = Cause(chain.CauseDegrade)
	CauseAuthority = Cause(chain.CauseAuthority)
	CauseSystem    = Cause(chain.CauseSystem)
)

func (c Cause) String() string { return chain.Cause(c).String() }

// BlockedError is the rule-driven admission denial raised at the entry
// call (spec.md §7.1): "Blocked{rule, cause}". The offending rule isn't
// surfaced directly (a resource may be governed by several rules of the
// same kind; Cause and Resource are what callers act on), matching how
// the chain package already reports rejections.
type BlockedError struct {
	Resource string
	Cause    Cause
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("sluice: %s blocked resource %q", e.Cause, e.Resource)
}

func newBlockedError(err *chain.BlockedError) *BlockedError {
	return &BlockedError{Resource: err.Resource.Name, Cause: Cause(err.Cause)}
}

// ErrEntryOrder is raised when an Entry is exited out of LIFO order within
// its context; every entry above the mismatched one is force-unwound
// first (spec.md §7.2).
var ErrEntryOrder = sctx.ErrEntryOrder
