package rules

import (
	"fmt"
	"os"

	"golang.org/x/net/http/httpguts"
	"gopkg.in/yaml.v3"

	"github.com/sluicelab/sluice/internal/chain"
	"github.com/sluicelab/sluice/internal/degrade"
	"github.com/sluicelab/sluice/internal/flow"
	"github.com/sluicelab/sluice/internal/node"
)

// flowRuleDoc is the YAML shape of one flow rule, named the way an
// operator would write it in a rules file rather than after the internal
// Grade/Strategy/Behavior enums.
type flowRuleDoc struct {
	Resource      string  `yaml:"resource"`
	Count         float64 `yaml:"count"`
	Grade         string  `yaml:"grade"`    // qps | thread
	Strategy      string  `yaml:"strategy"` // direct | relate | chain
	RefResource   string  `yaml:"refResource"`
	LimitOrigin   string  `yaml:"limitOrigin"`
	Behavior      string  `yaml:"behavior"` // reject | warmup | ratelimiter | warmup_ratelimiter
	Prioritized   bool    `yaml:"prioritized"`
	WarmUpSeconds int64   `yaml:"warmUpSeconds"`
	ColdFactor    float64 `yaml:"coldFactor"`
	MaxQueueMs    int64   `yaml:"maxQueueMs"`
	OccupyTimeout int64   `yaml:"occupyTimeoutMs"`
	ClusterMode   bool    `yaml:"clusterMode"`
	ClusterFlowID uint64  `yaml:"clusterFlowId"`
}

type degradeRuleDoc struct {
	Resource            string  `yaml:"resource"`
	Grade               string  `yaml:"grade"` // avg_rt | exception_ratio | exception_count
	Count               float64 `yaml:"count"`
	TimeWindowSec       int64   `yaml:"timeWindowSec"`
	RTSlowRequestAmount int64   `yaml:"rtSlowRequestAmount"`
	MinRequestAmount    int64   `yaml:"minRequestAmount"`
}

type authorityRuleDoc struct {
	Resource string   `yaml:"resource"`
	Strategy string   `yaml:"strategy"` // allow | deny
	Origins  []string `yaml:"origins"`
}

// RuleFile is the top-level YAML document accepted by LoadFile.
type RuleFile struct {
	FlowRules      []flowRuleDoc      `yaml:"flowRules"`
	DegradeRules   []degradeRuleDoc   `yaml:"degradeRules"`
	AuthorityRules []authorityRuleDoc `yaml:"authorityRules"`
}

// LoadFile parses a YAML rules file into flow.Rule, degrade.Rule and
// chain.AuthorityRule values, ready to hand to Registry.LoadFlowRules /
// LoadDegradeRules / LoadAuthorityRules.
func LoadFile(path string) ([]*flow.Rule, []*degrade.Rule, []*chain.AuthorityRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	var doc RuleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, nil, fmt.Errorf("rules: parse %s: %w", path, err)
	}

	flowRules := make([]*flow.Rule, 0, len(doc.FlowRules))
	for _, d := range doc.FlowRules {
		r, err := toFlowRule(d)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("rules: %s: %w", path, err)
		}
		flowRules = append(flowRules, r)
	}

	degradeRules := make([]*degrade.Rule, 0, len(doc.DegradeRules))
	for _, d := range doc.DegradeRules {
		r, err := toDegradeRule(d)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("rules: %s: %w", path, err)
		}
		degradeRules = append(degradeRules, r)
	}

	authorityRules := make([]*chain.AuthorityRule, 0, len(doc.AuthorityRules))
	for _, d := range doc.AuthorityRules {
		r, err := toAuthorityRule(d)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("rules: %s: %w", path, err)
		}
		authorityRules = append(authorityRules, r)
	}
	return flowRules, degradeRules, authorityRules, nil
}

func toAuthorityRule(d authorityRuleDoc) (*chain.AuthorityRule, error) {
	var strategy chain.AuthorityStrategy
	switch d.Strategy {
	case "", "deny":
		strategy = chain.AuthorityDeny
	case "allow":
		strategy = chain.AuthorityAllow
	default:
		return nil, fmt.Errorf("unknown authority strategy %q", d.Strategy)
	}
	// Origins are matched against sctx.Context.Origin, which callers in
	// practice populate from an inbound caller-identity header: reject at
	// load time an origin that no header value could carry (for example one
	// with control characters), since it could never match.
	for _, o := range d.Origins {
		if !httpguts.ValidHeaderFieldValue(o) {
			return nil, fmt.Errorf("authority rule for %q: origin %q is not a valid header field value", d.Resource, o)
		}
	}
	return chain.NewAuthorityRule(node.ResourceKey{Name: d.Resource}, strategy, d.Origins), nil
}

func toFlowRule(d flowRuleDoc) (*flow.Rule, error) {
	grade, err := parseGrade(d.Grade)
	if err != nil {
		return nil, err
	}
	strategy, err := parseStrategy(d.Strategy)
	if err != nil {
		return nil, err
	}
	behavior, err := parseBehavior(d.Behavior)
	if err != nil {
		return nil, err
	}
	return &flow.Rule{
		Resource:      node.ResourceKey{Name: d.Resource},
		Count:         d.Count,
		Grade:         grade,
		Strategy:      strategy,
		RefResource:   node.ResourceKey{Name: d.RefResource},
		LimitOrigin:   d.LimitOrigin,
		Behavior:      behavior,
		Prioritized:   d.Prioritized,
		WarmUpSeconds: d.WarmUpSeconds,
		ColdFactor:    d.ColdFactor,
		MaxQueueMs:    d.MaxQueueMs,
		OccupyTimeout: d.OccupyTimeout,
		ClusterMode:   d.ClusterMode,
		ClusterFlowID: d.ClusterFlowID,
	}, nil
}

func toDegradeRule(d degradeRuleDoc) (*degrade.Rule, error) {
	var grade degrade.Grade
	switch d.Grade {
	case "avg_rt":
		grade = degrade.GradeAvgRT
	case "exception_ratio":
		grade = degrade.GradeExceptionRatio
	case "exception_count":
		grade = degrade.GradeExceptionCount
	default:
		return nil, fmt.Errorf("unknown degrade grade %q", d.Grade)
	}
	return &degrade.Rule{
		Resource:            node.ResourceKey{Name: d.Resource},
		Grade:               grade,
		Count:               d.Count,
		TimeWindowSec:       d.TimeWindowSec,
		RTSlowRequestAmount: d.RTSlowRequestAmount,
		MinRequestAmount:    d.MinRequestAmount,
	}, nil
}

func parseGrade(s string) (flow.Grade, error) {
	switch s {
	case "", "qps":
		return flow.GradeQPS, nil
	case "thread":
		return flow.GradeThread, nil
	default:
		return 0, fmt.Errorf("unknown flow grade %q", s)
	}
}

func parseStrategy(s string) (flow.Strategy, error) {
	switch s {
	case "", "direct":
		return flow.StrategyDirect, nil
	case "relate":
		return flow.StrategyRelate, nil
	case "chain":
		return flow.StrategyChain, nil
	default:
		return 0, fmt.Errorf("unknown flow strategy %q", s)
	}
}

func parseBehavior(s string) (flow.Behavior, error) {
	switch s {
	case "", "reject":
		return flow.BehaviorReject, nil
	case "warmup":
		return flow.BehaviorWarmUp, nil
	case "ratelimiter":
		return flow.BehaviorRateLimiter, nil
	case "warmup_ratelimiter":
		return flow.BehaviorWarmUpRateLimiter, nil
	default:
		return 0, fmt.Errorf("unknown flow behavior %q", s)
	}
}
