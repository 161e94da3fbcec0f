package sluice

import (
	"fmt"
	"time"

	"github.com/sluicelab/sluice/internal/chain"
	"github.com/sluicelab/sluice/internal/clock"
	"github.com/sluicelab/sluice/internal/cluster"
	"github.com/sluicelab/sluice/internal/degrade"
	"github.com/sluicelab/sluice/internal/flow"
	"github.com/sluicelab/sluice/internal/node"
	"github.com/sluicelab/sluice/internal/rules"
	"github.com/sluicelab/sluice/internal/sctx"
)

// Engine is the composition root wiring everything a running process needs:
// the resource graph, the per-task context registry, the slot-chain
// pipeline, the rule registry, the degrade reset scheduler, and the idle
// resource janitor (spec.md §6's "External Interfaces"). Callers normally
// hold exactly one Engine for the life of a process.
type Engine struct {
	cfg Config
	clk clock.Clock

	graph     *node.Graph
	contexts  *sctx.Manager
	checker   *flow.Checker
	chains    *chain.ChainMap
	registry  *rules.Registry
	scheduler *degrade.ResetScheduler
	janitor   *janitor
}

// New builds an Engine from cfg, backed by the system clock. Zero-valued
// numeric fields in cfg fall back to DefaultConfig's values.
func New(cfg Config) *Engine {
	return newEngine(cfg, clock.Default)
}

// newEngine is New's clock-injectable counterpart, used by tests that need
// deterministic window arithmetic.
func newEngine(cfg Config, clk clock.Clock) *Engine {
	cfg = cfg.withDefaults()
	if clk == nil {
		clk = clock.Default
	}
	node.Configure(cfg.MetricSampleCount, cfg.MetricIntervalMs)

	graph := node.NewGraph(clk)
	contexts := sctx.NewManager(graph, cfg.MaxContext)
	checker := flow.NewChecker(graph)

	var system *chain.SystemRule
	if cfg.System != nil {
		system = &chain.SystemRule{
			MaxQps:     cfg.System.MaxQps,
			MaxThreads: cfg.System.MaxThreads,
			MaxAvgRtMs: cfg.System.MaxAvgRtMs,
		}
	}
	chains := chain.NewChainMap(clk, checker, system, cfg.StatisticMaxRtMs, cfg.MaxSlotChain)
	scheduler := degrade.NewResetScheduler()
	registry := rules.NewRegistry(clk, graph, chains, scheduler)

	e := &Engine{
		cfg:       cfg,
		clk:       clk,
		graph:     graph,
		contexts:  contexts,
		checker:   checker,
		chains:    chains,
		registry:  registry,
		scheduler: scheduler,
	}
	e.janitor = newJanitor(graph, clk, cfg.ResourceIdleMillis, time.Duration(cfg.JanitorIntervalMs)*time.Millisecond)
	return e
}

// Start launches the Engine's background maintenance: the idle-resource
// janitor. The degrade package's reset scheduler is already running by the
// time New returns, since tripped breakers must start their reset timer the
// instant they trip, not whenever the caller gets around to calling Start.
func (e *Engine) Start() { e.janitor.Start() }

// Close stops the Engine's background maintenance and waits for any
// in-flight sweep or scheduled reset to finish. An Engine cannot be reused
// after Close.
func (e *Engine) Close() error {
	e.janitor.Stop()
	e.scheduler.Stop()
	return nil
}

// EnableClusterMode wires the Engine's flow.Checker to delegate every
// ClusterMode rule's admission decision to svc (an embedded *cluster.Server
// or a *cluster.GRPCClient dialed against a remote one), per spec.md §4.8.
// fallbackToLocalWhenFail controls whether a failed remote call falls back
// to the rule's equivalent local controller or simply admits.
func (e *Engine) EnableClusterMode(svc cluster.TokenService, fallbackToLocalWhenFail bool) {
	e.checker.Cluster = cluster.NewClient(svc, fallbackToLocalWhenFail)
}

// LoadFlowRules replaces the flow rules for every resource named in
// rulesList (spec.md §6's "replace rule registry ... atomic per-resource").
func (e *Engine) LoadFlowRules(rulesList []*FlowRule) {
	e.registry.LoadFlowRules(toInternalFlowRules(rulesList))
}

// LoadDegradeRules replaces the degrade rules for every resource named in
// rulesList.
func (e *Engine) LoadDegradeRules(rulesList []*DegradeRule) {
	e.registry.LoadDegradeRules(toInternalDegradeRules(rulesList))
}

// LoadAuthorityRules installs one AuthorityRule per resource.
func (e *Engine) LoadAuthorityRules(rulesList []*AuthorityRule) {
	e.registry.LoadAuthorityRules(toInternalAuthorityRules(rulesList))
}

// LoadRulesFile parses a YAML rules file (flowRules/degradeRules/
// authorityRules documents) and installs every rule it contains.
func (e *Engine) LoadRulesFile(path string) error {
	flowRules, degradeRules, authorityRules, err := rules.LoadFile(path)
	if err != nil {
		return err
	}
	e.registry.LoadFlowRules(flowRules)
	e.registry.LoadDegradeRules(degradeRules)
	e.registry.LoadAuthorityRules(authorityRules)
	return nil
}

// Resources returns a snapshot of every resource name with live traffic
// statistics, for diagnostics.
func (e *Engine) Resources() []string { return e.graph.Resources() }

func (e *Engine) String() string {
	return fmt.Sprintf("sluice.Engine{contexts=%d, resources=%d}", e.contexts.Count(), len(e.graph.Resources()))
}
