// Package sluice is a flow-control, circuit-breaking and load-shaping
// library embedded inside service processes (spec.md §1). Callers bracket
// protected work with Entry/Exit, keyed by a resource name; between those
// two points the library decides whether to admit, delay, or reject the
// call based on the flow, degrade, and authority rules configured for
// that resource.
package sluice

// Config holds the process-wide knobs spec.md §6 names. When an Engine is
// built, zero or negative numeric fields are replaced by DefaultConfig's
// values; GlobalOn is used as given, so a zero Config has it off.
type Config struct {
	// GlobalOn is the master switch; when false, every entry is admitted
	// and no statistics are recorded.
	GlobalOn bool

	// MetricSampleCount is the number of buckets in the second-grained
	// Metric every StatNode keeps.
	MetricSampleCount int
	// MetricIntervalMs is the total window covered by the second-grained
	// Metric.
	MetricIntervalMs int64

	// StatisticMaxRtMs clamps recorded response times.
	StatisticMaxRtMs int64

	// OccupyTimeoutMs bounds how long a prioritized reject will sleep
	// waiting for a future bucket.
	OccupyTimeoutMs int64
	// OccupyMaxRatio caps the fraction of a cluster-mode rule's threshold
	// that may be borrowed via priority occupy.
	OccupyMaxRatio float64

	// MaxSlotChain caps the number of distinct per-resource chains.
	MaxSlotChain int64
	// MaxContext caps the number of distinct context names.
	MaxContext int64

	// System is the optional process-wide inbound guard (spec.md §4.5's
	// System slot), applied ahead of every resource's own flow/degrade
	// rules. Nil disables it.
	System *SystemRule

	// ResourceIdleMillis is how long a resource may go without a counter
	// mutation before the janitor prunes its ClusterNode.
	ResourceIdleMillis int64
	// JanitorIntervalMs is how often the janitor sweeps for idle
	// resources. The janitor only runs once Start is called.
	JanitorIntervalMs int64
}

// SystemRule mirrors internal/chain.SystemRule: ceilings checked against
// the process-wide global in-bound node, independent of any per-resource
// FlowRule. A zero field means "unbounded" for that dimension.
type SystemRule struct {
	MaxQps     float64
	MaxThreads int64
	MaxAvgRtMs float64
}

// DefaultConfig returns spec.md §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		GlobalOn:          true,
		MetricSampleCount: 2,
		MetricIntervalMs:  1000,
		StatisticMaxRtMs:  4900,
		OccupyTimeoutMs:   500,
		OccupyMaxRatio:    1.0,
		MaxSlotChain:       6000,
		MaxContext:         2000,
		ResourceIdleMillis: 30 * 60 * 1000,
		JanitorIntervalMs:  60 * 1000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MetricSampleCount <= 0 {
		c.MetricSampleCount = d.MetricSampleCount
	}
	if c.MetricIntervalMs <= 0 {
		c.MetricIntervalMs = d.MetricIntervalMs
	}
	if c.StatisticMaxRtMs <= 0 {
		c.StatisticMaxRtMs = d.StatisticMaxRtMs
	}
	if c.OccupyTimeoutMs <= 0 {
		c.OccupyTimeoutMs = d.OccupyTimeoutMs
	}
	if c.OccupyMaxRatio <= 0 {
		c.OccupyMaxRatio = d.OccupyMaxRatio
	}
	if c.MaxSlotChain <= 0 {
		c.MaxSlotChain = d.MaxSlotChain
	}
	if c.MaxContext <= 0 {
		c.MaxContext = d.MaxContext
	}
	if c.ResourceIdleMillis <= 0 {
		c.ResourceIdleMillis = d.ResourceIdleMillis
	}
	if c.JanitorIntervalMs <= 0 {
		c.JanitorIntervalMs = d.JanitorIntervalMs
	}
	return c
}
