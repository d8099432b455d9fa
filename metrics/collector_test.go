package metrics

import (
	"sync"
	"testing"
)

func TestCollector_NilReceiverSafe(t *testing.T) {
	var c *Collector
	c.IncRunStarted()
	c.IncRunCompleted()
	c.AddPruned(3, 1024)
	c.AbsorbHubStats(10, 2)

	if got := c.Snapshot(); got != (Snapshot{}) {
		t.Errorf("nil collector snapshot must be zero, got %+v", got)
	}
}

func TestCollector_CountersAccumulate(t *testing.T) {
	c := NewCollector()
	c.IncRunStarted()
	c.IncRunStarted()
	c.IncRunCompleted()
	c.IncRunFailed()
	c.IncRunCancelled()
	c.IncEngineLaunchSuccess()
	c.IncEngineLaunchFailure()
	c.IncBatchStarted()
	c.IncBatchCompleted()
	c.IncBundleExported()
	c.IncBundleImported()
	c.AddPruned(2, 4096)
	c.AbsorbHubStats(100, 7)

	s := c.Snapshot()
	if s.RunsStarted != 2 || s.RunsCompleted != 1 || s.RunsFailed != 1 || s.RunsCancelled != 1 {
		t.Errorf("unexpected run counters %+v", s)
	}
	if s.EngineLaunchSuccess != 1 || s.EngineLaunchFailure != 1 {
		t.Errorf("unexpected launch counters %+v", s)
	}
	if s.RunsPruned != 2 || s.BytesFreed != 4096 {
		t.Errorf("unexpected retention counters %+v", s)
	}
	if s.SnapshotsPublished != 100 || s.SnapshotsDropped != 7 {
		t.Errorf("unexpected hub counters %+v", s)
	}
}

func TestCollector_SnapshotIsIndependent(t *testing.T) {
	c := NewCollector()
	c.IncRunStarted()
	before := c.Snapshot()
	c.IncRunStarted()

	if before.RunsStarted != 1 {
		t.Errorf("snapshot must be immutable, got %d", before.RunsStarted)
	}
}

func TestCollector_ConcurrentIncrements(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.IncRunStarted()
			c.AbsorbHubStats(1, 0)
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.RunsStarted != 50 || s.SnapshotsPublished != 50 {
		t.Errorf("lost increments: %+v", s)
	}
}
