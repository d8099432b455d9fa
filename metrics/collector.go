// Package metrics provides in-process counters for the simulation control
// plane.
//
// The Collector accumulates counters across runs, batches, and bundle
// operations. It is a leaf package with no internal dependencies. Telemetry
// hub drop counts are absorbed from the hub's stats at run completion
// rather than recorded live, avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
	RunsCancelled int64

	// Engine subprocess
	EngineLaunchSuccess int64
	EngineLaunchFailure int64

	// Telemetry
	SnapshotsPublished int64
	SnapshotsDropped   int64

	// Batches
	BatchesStarted   int64
	BatchesCompleted int64
	BatchesFailed    int64

	// Bundles
	BundlesExported int64
	BundlesImported int64

	// Retention
	RunsPruned int64
	BytesFreed int64
}

// Collector accumulates counters for the process lifetime.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) inc(f func(*Snapshot)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	f(&c.s)
	c.mu.Unlock()
}

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() { c.inc(func(s *Snapshot) { s.RunsStarted++ }) }

// IncRunCompleted records a successful run completion.
func (c *Collector) IncRunCompleted() { c.inc(func(s *Snapshot) { s.RunsCompleted++ }) }

// IncRunFailed records a run failure.
func (c *Collector) IncRunFailed() { c.inc(func(s *Snapshot) { s.RunsFailed++ }) }

// IncRunCancelled records a cancelled run.
func (c *Collector) IncRunCancelled() { c.inc(func(s *Snapshot) { s.RunsCancelled++ }) }

// IncEngineLaunchSuccess records a successful engine launch.
func (c *Collector) IncEngineLaunchSuccess() { c.inc(func(s *Snapshot) { s.EngineLaunchSuccess++ }) }

// IncEngineLaunchFailure records a failed engine launch.
func (c *Collector) IncEngineLaunchFailure() { c.inc(func(s *Snapshot) { s.EngineLaunchFailure++ }) }

// IncBatchStarted records a batch start.
func (c *Collector) IncBatchStarted() { c.inc(func(s *Snapshot) { s.BatchesStarted++ }) }

// IncBatchCompleted records a batch that finished with no failed members.
func (c *Collector) IncBatchCompleted() { c.inc(func(s *Snapshot) { s.BatchesCompleted++ }) }

// IncBatchFailed records a batch with at least one failed member.
func (c *Collector) IncBatchFailed() { c.inc(func(s *Snapshot) { s.BatchesFailed++ }) }

// IncBundleExported records a finished workspace export.
func (c *Collector) IncBundleExported() { c.inc(func(s *Snapshot) { s.BundlesExported++ }) }

// IncBundleImported records a finished workspace import.
func (c *Collector) IncBundleImported() { c.inc(func(s *Snapshot) { s.BundlesImported++ }) }

// AddPruned records a retention pass.
func (c *Collector) AddPruned(runs int, bytes int64) {
	c.inc(func(s *Snapshot) {
		s.RunsPruned += int64(runs)
		s.BytesFreed += bytes
	})
}

// AbsorbHubStats copies publish/drop counters from the telemetry hub.
// Called once per run with the final per-run hub stats. The counters are
// plain int64s to keep this package free of internal dependencies.
func (c *Collector) AbsorbHubStats(published, dropped int64) {
	c.inc(func(s *Snapshot) {
		s.SnapshotsPublished += published
		s.SnapshotsDropped += dropped
	})
}

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
