package chain

import "github.com/sluicelab/sluice/internal/node"

// AuthorityStrategy selects whether an AuthorityRule's origin list is an
// allow list or a deny list.
type AuthorityStrategy int

const (
	AuthorityAllow AuthorityStrategy = iota
	AuthorityDeny
)

// AuthorityRule restricts which call-origins may reach a resource.
type AuthorityRule struct {
	Resource node.ResourceKey
	Strategy AuthorityStrategy
	Origins  map[string]struct{}
}

// NewAuthorityRule builds a rule from a plain origin slice.
func NewAuthorityRule(resource node.ResourceKey, strategy AuthorityStrategy, origins []string) *AuthorityRule {
	set := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		set[o] = struct{}{}
	}
	return &AuthorityRule{Resource: resource, Strategy: strategy, Origins: set}
}

// Allows reports whether origin may reach this rule's resource.
func (r *AuthorityRule) Allows(origin string) bool {
	if r == nil {
		return true
	}
	_, listed := r.Origins[origin]
	if r.Strategy == AuthorityAllow {
		return listed
	}
	return !listed
}
