package sluice

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sluicelab/sluice/internal/clock"
	"github.com/sluicelab/sluice/internal/node"
)

// janitor periodically prunes ClusterNodes that have gone idle, bounding
// the resource map's size in long-running processes (spec.md §5/§9). It
// reuses the same cron.Cron machinery the degrade package's ResetScheduler
// runs on, just on a fixed recurring schedule instead of a one-shot one.
type janitor struct {
	graph      *node.Graph
	clk        clock.Clock
	idleMillis int64
	cron       *cron.Cron
}

func newJanitor(graph *node.Graph, clk clock.Clock, idleMillis int64, interval time.Duration) *janitor {
	j := &janitor{graph: graph, clk: clk, idleMillis: idleMillis, cron: cron.New()}
	j.cron.Schedule(cron.Every(interval), cron.FuncJob(j.sweep))
	return j
}

// Start begins the periodic sweep. Safe to call at most once.
func (j *janitor) Start() { j.cron.Start() }

// Stop halts the sweep, waiting for an in-flight one to finish.
func (j *janitor) Stop() { <-j.cron.Stop().Done() }

func (j *janitor) sweep() {
	j.graph.PruneIdle(j.clk.NowMillis(), j.idleMillis)
}
