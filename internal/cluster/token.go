// Package cluster implements the optional cluster-mode token service named
// in spec.md §4.8/§6: a remote (or in-process) collaborator a FlowRule can
// delegate admission decisions to instead of checking a local
// TrafficShapingController. The wire format is explicitly not part of the
// core specification; this package defines the contract, an embedded
// in-process Server implementing it directly, and one concrete transport
// (gRPC) wrapping it for out-of-process use.
package cluster

import (
	"context"

	"github.com/google/uuid"
)

// Status is a TokenService response code (spec.md §4.8).
type Status int

const (
	// StatusOK admits the request with no further action.
	StatusOK Status = iota
	// StatusShouldWait admits the request after the caller sleeps WaitMs.
	StatusShouldWait
	// StatusBlocked rejects the request.
	StatusBlocked
	// StatusNoRuleExists means the server holds no rule for the given flow ID.
	StatusNoRuleExists
	// StatusBadRequest means the request itself was malformed.
	StatusBadRequest
	// StatusFail is a generic server-side failure.
	StatusFail
	// StatusTooManyRequest means the server itself is overloaded and
	// cannot evaluate the request right now.
	StatusTooManyRequest
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusShouldWait:
		return "SHOULD_WAIT"
	case StatusBlocked:
		return "BLOCKED"
	case StatusNoRuleExists:
		return "NO_RULE_EXISTS"
	case StatusBadRequest:
		return "BAD_REQUEST"
	case StatusFail:
		return "FAIL"
	case StatusTooManyRequest:
		return "TOO_MANY_REQUEST"
	default:
		return "UNKNOWN"
	}
}

// ThresholdType selects how a rule's count is interpreted on the server
// side (spec.md §4.8).
type ThresholdType int

const (
	// ThresholdGlobal uses the rule's Count directly as the cluster-wide
	// ceiling.
	ThresholdGlobal ThresholdType = iota
	// ThresholdAvgLocal multiplies Count by the number of distinct
	// ClientIDs that have ever requested a token for the flow (clients are
	// not forgotten when they go away), approximating a per-instance local
	// threshold that sums to a cluster-wide one.
	ThresholdAvgLocal
)

// Request is one token ask: spec.md §4.8's requestToken(ruleId, count,
// prioritized). RequestID correlates a single ask across a server's logs
// independent of ClientID, which many callers share across requests.
type Request struct {
	FlowID       uint64
	ClientID     string
	AcquireCount int64
	Prioritized  bool
	RequestID    string
}

// NewRequest builds a Request with a fresh RequestID, for callers that
// don't already have a correlation ID of their own to carry.
func NewRequest(flowID uint64, clientID string, acquireCount int64, prioritized bool) Request {
	return Request{
		FlowID:       flowID,
		ClientID:     clientID,
		AcquireCount: acquireCount,
		Prioritized:  prioritized,
		RequestID:    uuid.NewString(),
	}
}

// TokenResult is the TokenService response: spec.md §4.8's
// TokenResult{status, remaining, waitMs}.
type TokenResult struct {
	Status    Status
	Remaining int64
	WaitMs    int64
}

// TokenService is the contract a cluster-mode FlowRule delegates to,
// implemented here either by an in-process Server (tests, single-binary
// deployments) or a GRPCClient talking to a remote process.
type TokenService interface {
	RequestToken(ctx context.Context, req Request) (TokenResult, error)
}
