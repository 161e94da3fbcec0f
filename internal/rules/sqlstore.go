package rules

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/sluicelab/sluice/internal/degrade"
	"github.com/sluicelab/sluice/internal/flow"
	"github.com/sluicelab/sluice/internal/node"
)

// SQLRuleStore persists flow and degrade rules in a SQLite database. It is
// the durable counterpart to the YAML Loader: a control plane can write
// rows here and have them picked up on the next Load.
type SQLRuleStore struct {
	db *sql.DB
}

// OpenSQLRuleStore opens (creating and migrating if needed) a rules
// database at path.
func OpenSQLRuleStore(path string) (*SQLRuleStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("rules: open %s: %w", path, err)
	}
	if err := MigrateRulesDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLRuleStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLRuleStore) Close() error { return s.db.Close() }

// LoadFlowRules reads every row from flow_rules.
func (s *SQLRuleStore) LoadFlowRules() ([]*flow.Rule, error) {
	rows, err := s.db.Query(`SELECT resource, direction, count, grade, strategy, ref_resource,
		limit_origin, behavior, prioritized, warm_up_seconds, cold_factor, max_queue_ms,
		occupy_timeout_ms, cluster_mode, cluster_flow_id FROM flow_rules`)
	if err != nil {
		return nil, fmt.Errorf("rules: load flow rules: %w", err)
	}
	defer rows.Close()

	var out []*flow.Rule
	for rows.Next() {
		var r flow.Rule
		var direction, grade, strategy, behavior, prioritized, clusterMode int
		var refResource string
		if err := rows.Scan(&r.Resource.Name, &direction, &r.Count, &grade, &strategy, &refResource,
			&r.LimitOrigin, &behavior, &prioritized, &r.WarmUpSeconds, &r.ColdFactor, &r.MaxQueueMs,
			&r.OccupyTimeout, &clusterMode, &r.ClusterFlowID); err != nil {
			return nil, fmt.Errorf("rules: scan flow rule: %w", err)
		}
		r.Resource.Direction = node.EntryDirection(direction)
		r.Grade = flow.Grade(grade)
		r.Strategy = flow.Strategy(strategy)
		r.RefResource = node.ResourceKey{Name: refResource}
		r.Behavior = flow.Behavior(behavior)
		r.Prioritized = prioritized != 0
		r.ClusterMode = clusterMode != 0
		out = append(out, &r)
	}
	return out, rows.Err()
}

// LoadDegradeRules reads every row from degrade_rules.
func (s *SQLRuleStore) LoadDegradeRules() ([]*degrade.Rule, error) {
	rows, err := s.db.Query(`SELECT resource, grade, count, time_window_sec,
		rt_slow_request_amount, min_request_amount FROM degrade_rules`)
	if err != nil {
		return nil, fmt.Errorf("rules: load degrade rules: %w", err)
	}
	defer rows.Close()

	var out []*degrade.Rule
	for rows.Next() {
		var r degrade.Rule
		var grade int
		var resource string
		if err := rows.Scan(&resource, &grade, &r.Count, &r.TimeWindowSec,
			&r.RTSlowRequestAmount, &r.MinRequestAmount); err != nil {
			return nil, fmt.Errorf("rules: scan degrade rule: %w", err)
		}
		r.Resource = node.ResourceKey{Name: resource}
		r.Grade = degrade.Grade(grade)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ReplaceFlowRules atomically replaces every row in flow_rules.
func (s *SQLRuleStore) ReplaceFlowRules(rulesList []*flow.Rule, nowNs int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("rules: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM flow_rules`); err != nil {
		return fmt.Errorf("rules: clear flow rules: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO flow_rules
		(resource, direction, count, grade, strategy, ref_resource, limit_origin, behavior,
		 prioritized, warm_up_seconds, cold_factor, max_queue_ms, occupy_timeout_ms,
		 cluster_mode, cluster_flow_id, updated_at_ns)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("rules: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rulesList {
		prioritized := 0
		if r.Prioritized {
			prioritized = 1
		}
		clusterMode := 0
		if r.ClusterMode {
			clusterMode = 1
		}
		if _, err := stmt.Exec(r.Resource.Name, int(r.Resource.Direction), r.Count, int(r.Grade),
			int(r.Strategy), r.RefResource.Name, r.LimitOrigin, int(r.Behavior), prioritized,
			r.WarmUpSeconds, r.ColdFactor, r.MaxQueueMs, r.OccupyTimeout, clusterMode,
			r.ClusterFlowID, nowNs); err != nil {
			return fmt.Errorf("rules: insert flow rule %q: %w", r.Resource.Name, err)
		}
	}
	return tx.Commit()
}

// ReplaceDegradeRules atomically replaces every row in degrade_rules.
func (s *SQLRuleStore) ReplaceDegradeRules(rulesList []*degrade.Rule, nowNs int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("rules: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM degrade_rules`); err != nil {
		return fmt.Errorf("rules: clear degrade rules: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO degrade_rules
		(resource, grade, count, time_window_sec, rt_slow_request_amount, min_request_amount, updated_at_ns)
		VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("rules: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rulesList {
		if _, err := stmt.Exec(r.Resource.Name, int(r.Grade), r.Count, r.TimeWindowSec,
			r.RTSlowRequestAmount, r.MinRequestAmount, nowNs); err != nil {
			return fmt.Errorf("rules: insert degrade rule %q: %w", r.Resource.Name, err)
		}
	}
	return tx.Commit()
}
