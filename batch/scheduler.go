// Package batch schedules groups of scenario runs, sequentially or with
// bounded parallelism, and tracks per-scenario state in memory.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/log"
	"github.com/justapithecus/planalign/metrics"
	"github.com/justapithecus/planalign/store"
	"github.com/justapithecus/planalign/telemetry"
	"github.com/justapithecus/planalign/types"
)

// DefaultParallelism caps concurrent scenario starts in parallel mode.
const DefaultParallelism = 2

// Runner is the executor surface the scheduler drives. Satisfied by
// runtime.Executor.
type Runner interface {
	Execute(ctx context.Context, workspaceID, scenarioID, runID string, cfg types.ConfigMap, resume bool) error
	Cancel(runID string)
}

// Scheduler creates and executes batch jobs. Batch state is held in
// process memory and does not survive restart.
type Scheduler struct {
	store       *store.Store
	hub         *telemetry.Hub
	runner      Runner
	collector   *metrics.Collector
	logger      *log.Logger
	parallelism int

	mu   sync.Mutex
	jobs map[string]*types.BatchJob
	// runIDs maps batch id -> scenario id -> run id, for cancellation.
	runIDs map[string]map[string]string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithParallelism sets the parallel-mode concurrency cap.
func WithParallelism(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithCollector sets the metrics collector.
func WithCollector(c *metrics.Collector) Option {
	return func(s *Scheduler) { s.collector = c }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a scheduler over the given store, hub, and runner.
func NewScheduler(st *store.Store, hub *telemetry.Hub, runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:       st,
		hub:         hub,
		runner:      runner,
		logger:      log.NewLogger(log.RunContext{}),
		parallelism: DefaultParallelism,
		jobs:        make(map[string]*types.BatchJob),
		runIDs:      make(map[string]map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create builds a batch job over all scenarios of a workspace, or the
// given subset, with every entry pending.
func (s *Scheduler) Create(workspaceID string, scenarioIDs []string, name string, parallel bool, exportFormat string) (*types.BatchJob, error) {
	ws, err := s.store.GetWorkspace(workspaceID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, errs.NotFound("create_batch", workspaceID)
	}

	all, err := s.store.ListScenarios(workspaceID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, errs.New(errs.ErrPrecondition, "create_batch", workspaceID, fmt.Errorf("workspace has no scenarios"))
	}

	selected := all
	if len(scenarioIDs) > 0 {
		wanted := make(map[string]bool, len(scenarioIDs))
		for _, id := range scenarioIDs {
			wanted[id] = true
		}
		selected = selected[:0:0]
		for _, sc := range all {
			if wanted[sc.ID] {
				selected = append(selected, sc)
			}
		}
		if len(selected) == 0 {
			return nil, errs.New(errs.ErrPrecondition, "create_batch", workspaceID, fmt.Errorf("none of the requested scenarios exist"))
		}
	}

	now := time.Now().UTC()
	if name == "" {
		name = "Batch " + now.Format("2006-01-02 15:04")
	}

	job := &types.BatchJob{
		ID:           uuid.New().String(),
		WorkspaceID:  workspaceID,
		Name:         name,
		Status:       types.BatchPending,
		SubmittedAt:  now,
		Parallel:     parallel,
		ExportFormat: exportFormat,
	}
	for _, sc := range selected {
		job.Scenarios = append(job.Scenarios, types.BatchScenario{
			ScenarioID: sc.ID,
			Name:       sc.Name,
			Status:     types.ScenarioQueued,
		})
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.runIDs[job.ID] = make(map[string]string)
	s.mu.Unlock()

	return s.Get(job.ID), nil
}

// Get returns a copy of a batch job, or nil if unknown.
func (s *Scheduler) Get(batchID string) *types.BatchJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[batchID]
	if !ok {
		return nil
	}
	copied := *job
	copied.Scenarios = append([]types.BatchScenario(nil), job.Scenarios...)
	return &copied
}

// List returns all batch jobs for a workspace.
func (s *Scheduler) List(workspaceID string) []*types.BatchJob {
	s.mu.Lock()
	ids := make([]string, 0, len(s.jobs))
	for id, job := range s.jobs {
		if job.WorkspaceID == workspaceID {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	out := make([]*types.BatchJob, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Get(id))
	}
	return out
}

// Execute runs the batch to completion. Sequential mode runs scenarios in
// submission order; parallel mode uses a semaphore over scenario starts.
// A failing scenario is marked failed and the rest continue; the final
// batch status is failed iff any member failed.
func (s *Scheduler) Execute(ctx context.Context, batchID string) error {
	s.mu.Lock()
	job, ok := s.jobs[batchID]
	if !ok {
		s.mu.Unlock()
		return errs.NotFound("execute_batch", batchID)
	}
	job.Status = types.BatchRunning
	workspaceID := job.WorkspaceID
	parallel := job.Parallel
	count := len(job.Scenarios)
	s.mu.Unlock()

	s.collector.IncBatchStarted()
	s.logger.Info("batch starting", map[string]any{
		"batch_id":  batchID,
		"scenarios": count,
		"parallel":  parallel,
	})

	if parallel {
		sem := make(chan struct{}, s.parallelism)
		var wg sync.WaitGroup
		for i := range count {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					s.markScenario(batchID, idx, types.ScenarioFailed, ctx.Err().Error())
					return
				}
				defer func() { <-sem }()
				s.runScenario(ctx, batchID, workspaceID, idx)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range count {
			if ctx.Err() != nil {
				s.markScenario(batchID, i, types.ScenarioFailed, ctx.Err().Error())
				continue
			}
			s.runScenario(ctx, batchID, workspaceID, i)
		}
	}

	return s.complete(batchID)
}

// Cancel forwards a cancel request for every member run the batch has
// started, including members that have already finished.
func (s *Scheduler) Cancel(batchID string) error {
	s.mu.Lock()
	runs, ok := s.runIDs[batchID]
	if !ok {
		s.mu.Unlock()
		return errs.NotFound("cancel_batch", batchID)
	}
	ids := make([]string, 0, len(runs))
	for _, runID := range runs {
		ids = append(ids, runID)
	}
	s.mu.Unlock()

	for _, runID := range ids {
		s.runner.Cancel(runID)
	}
	return nil
}

// runScenario executes one batch member and mirrors its progress from a
// telemetry subscription keyed by the member's run id.
func (s *Scheduler) runScenario(ctx context.Context, batchID, workspaceID string, idx int) {
	s.mu.Lock()
	job := s.jobs[batchID]
	scenarioID := job.Scenarios[idx].ScenarioID
	runID := uuid.New().String()
	job.Scenarios[idx].Status = types.ScenarioRunning
	job.Scenarios[idx].RunID = runID
	s.runIDs[batchID][scenarioID] = runID
	s.mu.Unlock()

	cfg, err := s.store.MergedConfig(workspaceID, scenarioID)
	if err != nil || cfg == nil {
		s.markScenario(batchID, idx, types.ScenarioFailed, "scenario configuration unavailable")
		return
	}

	sub := s.hub.Subscribe(runID)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for snapshot := range sub.C() {
			s.mu.Lock()
			if job, ok := s.jobs[batchID]; ok {
				job.Scenarios[idx].Progress = snapshot.Progress
			}
			s.mu.Unlock()
		}
	}()

	err = s.runner.Execute(ctx, workspaceID, scenarioID, runID, cfg, false)

	s.hub.Unsubscribe(runID, sub)
	<-progressDone

	if err != nil {
		status := types.ScenarioFailed
		if errors.Is(err, errs.ErrCancelled) {
			status = types.ScenarioCancelled
		}
		s.markScenario(batchID, idx, status, err.Error())
		return
	}
	s.markScenario(batchID, idx, types.ScenarioCompleted, "")
}

func (s *Scheduler) markScenario(batchID string, idx int, status types.ScenarioStatus, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[batchID]
	if !ok {
		return
	}
	job.Scenarios[idx].Status = status
	job.Scenarios[idx].ErrorMessage = errMsg
	if status == types.ScenarioCompleted {
		job.Scenarios[idx].Progress = 100
	}
}

func (s *Scheduler) complete(batchID string) error {
	s.mu.Lock()
	job, ok := s.jobs[batchID]
	if !ok {
		s.mu.Unlock()
		return errs.NotFound("complete_batch", batchID)
	}

	failed := false
	for _, sc := range job.Scenarios {
		if sc.Status == types.ScenarioFailed {
			failed = true
			break
		}
	}

	now := time.Now().UTC()
	job.CompletedAt = &now
	job.DurationSeconds = now.Sub(job.SubmittedAt).Seconds()
	if failed {
		job.Status = types.BatchFailed
	} else {
		job.Status = types.BatchCompleted
	}
	status := job.Status
	s.mu.Unlock()

	if status == types.BatchFailed {
		s.collector.IncBatchFailed()
		return errs.New(errs.ErrEngine, "execute_batch", batchID, fmt.Errorf("one or more scenarios failed"))
	}
	s.collector.IncBatchCompleted()
	return nil
}
