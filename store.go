package sluice

import (
	"github.com/sluicelab/sluice/internal/rules"
)

// RuleStore is the durable, SQLite-backed counterpart to LoadRulesFile: a
// control plane writes rows here and an Engine picks them up on the next
// LoadRulesFromStore (spec.md §6's rule registry, made persistent).
type RuleStore struct {
	s *rules.SQLRuleStore
}

// OpenRuleStore opens (creating and migrating if needed) a rules database
// at path.
func OpenRuleStore(path string) (*RuleStore, error) {
	s, err := rules.OpenSQLRuleStore(path)
	if err != nil {
		return nil, err
	}
	return &RuleStore{s: s}, nil
}

// Close releases the underlying database handle.
func (r *RuleStore) Close() error { return r.s.Close() }

// ReplaceFlowRules atomically replaces every stored flow rule.
func (r *RuleStore) ReplaceFlowRules(rulesList []*FlowRule, updatedAtNs int64) error {
	return r.s.ReplaceFlowRules(toInternalFlowRules(rulesList), updatedAtNs)
}

// ReplaceDegradeRules atomically replaces every stored degrade rule.
func (r *RuleStore) ReplaceDegradeRules(rulesList []*DegradeRule, updatedAtNs int64) error {
	return r.s.ReplaceDegradeRules(toInternalDegradeRules(rulesList), updatedAtNs)
}

// LoadRulesFromStore installs every flow and degrade rule currently
// persisted in store, replacing whatever was loaded for those resources
// before.
func (e *Engine) LoadRulesFromStore(store *RuleStore) error {
	flowRules, err := store.s.LoadFlowRules()
	if err != nil {
		return err
	}
	degradeRules, err := store.s.LoadDegradeRules()
	if err != nil {
		return err
	}
	e.registry.LoadFlowRules(flowRules)
	e.registry.LoadDegradeRules(degradeRules)
	return nil
}
