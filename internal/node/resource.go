// Package node implements the per-resource statistics graph: StatNode,
// DefaultNode, ClusterNode and EntranceNode, and the NodeGraph registry
// that wires them together per spec.md §3/§4.4.
package node

import "github.com/zeebo/xxh3"

// EntryDirection describes whether a resource represents inbound or
// outbound traffic. It is descriptive metadata only — it does not
// participate in ResourceKey equality or hashing.
type EntryDirection int

const (
	// DirectionIn marks a resource as inbound (e.g. a served endpoint).
	DirectionIn EntryDirection = iota
	// DirectionOut marks a resource as outbound (e.g. a downstream call).
	DirectionOut
)

// ResourceKey identifies a protected resource. Equality and hashing use
// Name only — Direction and ResourceType are descriptive, not identifying,
// per spec.md §3.
type ResourceKey struct {
	Name         string
	Direction    EntryDirection
	ResourceType int
}

// Hash returns a fast, allocation-light 64-bit digest of the key's
// identifying field, suitable for sharding or correlation IDs (map lookups
// themselves use Name directly via Go's native string-keyed maps).
func (k ResourceKey) Hash() uint64 {
	return xxh3.HashString(k.Name)
}

// String returns the resource name.
func (k ResourceKey) String() string {
	return k.Name
}
