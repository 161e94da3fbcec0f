package sluice

import (
	"google.golang.org/grpc"

	"github.com/sluicelab/sluice/internal/clock"
	"github.com/sluicelab/sluice/internal/cluster"
)

// Cluster-mode types (spec.md §4.8). TokenService is the contract an
// embedded Server or a GRPCClient satisfies; ClusterRuleConfig configures
// one flow's admission state on a Server.
type (
	TokenService      = cluster.TokenService
	TokenResult       = cluster.TokenResult
	TokenStatus       = cluster.Status
	ClusterThreshold  = cluster.ThresholdType
	ClusterRuleConfig = cluster.RuleConfig
)

const (
	TokenOK             = cluster.StatusOK
	TokenShouldWait     = cluster.StatusShouldWait
	TokenBlocked        = cluster.StatusBlocked
	TokenNoRuleExists   = cluster.StatusNoRuleExists
	TokenBadRequest     = cluster.StatusBadRequest
	TokenFail           = cluster.StatusFail
	TokenTooManyRequest = cluster.StatusTooManyRequest
	ThresholdGlobal     = cluster.ThresholdGlobal
	ThresholdAvgLocal   = cluster.ThresholdAvgLocal
)

// NewTokenServer creates an empty embedded token Server: the in-process
// TokenService implementation a standalone cluster coordinator process (or
// an Engine acting as its own coordinator) registers flow rules against.
func NewTokenServer() *cluster.Server {
	return cluster.NewServer(clock.Default)
}

// DialTokenService connects to a remote TokenService over the given gRPC
// client connection.
func DialTokenService(conn *grpc.ClientConn) TokenService {
	return cluster.NewGRPCClient(conn)
}

// RegisterTokenServer exposes svc as a gRPC service on s, for a process
// that runs its own embedded token Server (from NewTokenServer) as the
// cluster's coordinator.
func RegisterTokenServer(s *grpc.Server, svc TokenService) {
	cluster.RegisterGRPCServer(s, svc)
}
