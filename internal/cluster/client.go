package cluster

import (
	"context"
	"time"
)

// Client wraps a TokenService (embedded Server or GRPCClient) with the
// response-handling policy spec.md §4.8 assigns to the caller side: OK
// admits, SHOULD_WAIT sleeps then admits, BLOCKED rejects, and any
// error/FAIL/TOO_MANY_REQUEST either falls back to a local flow check or
// admits, depending on FallbackToLocalWhenFail.
type Client struct {
	svc TokenService

	// FallbackToLocalWhenFail, when true, runs the supplied local check
	// instead of blindly admitting on a token-service error or
	// FAIL/TOO_MANY_REQUEST response.
	FallbackToLocalWhenFail bool

	// Sleep is overridable in tests.
	Sleep func(time.Duration)
}

// NewClient builds a Client over svc.
func NewClient(svc TokenService, fallbackToLocalWhenFail bool) *Client {
	return &Client{svc: svc, FallbackToLocalWhenFail: fallbackToLocalWhenFail, Sleep: time.Sleep}
}

// CanPass requests a token for req and applies spec.md §4.8's client
// behavior. localFallback, if non-nil, is consulted only when the token
// service itself failed and FallbackToLocalWhenFail is set.
func (c *Client) CanPass(ctx context.Context, req Request, localFallback func() bool) (bool, error) {
	res, err := c.svc.RequestToken(ctx, req)
	if err != nil {
		return c.onFail(localFallback), nil
	}

	switch res.Status {
	case StatusOK:
		return true, nil
	case StatusShouldWait:
		if res.WaitMs > 0 && c.Sleep != nil {
			c.Sleep(time.Duration(res.WaitMs) * time.Millisecond)
		}
		return true, nil
	case StatusBlocked, StatusNoRuleExists, StatusBadRequest:
		return false, nil
	default: // StatusFail, StatusTooManyRequest
		return c.onFail(localFallback), nil
	}
}

func (c *Client) onFail(localFallback func() bool) bool {
	if c.FallbackToLocalWhenFail && localFallback != nil {
		return localFallback()
	}
	return true
}
