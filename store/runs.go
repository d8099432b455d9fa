package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/types"
)

// RunRegistry holds active and recently finished runs in process memory.
// Each run is guarded by its own mutex; terminal states are write-once and
// progress never decreases.
type RunRegistry struct {
	mu   sync.Mutex
	runs map[string]*runSlot
}

type runSlot struct {
	mu  sync.Mutex
	run types.Run
}

// NewRunRegistry creates an empty registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*runSlot)}
}

// Create registers a pending run. The run id must be unused.
func (r *RunRegistry) Create(workspaceID, scenarioID, runID string, startYear, totalYears int) (*types.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[runID]; exists {
		return nil, errs.Conflict("create_run", fmt.Errorf("run %s already exists", runID))
	}

	run := types.Run{
		ID:           runID,
		WorkspaceID:  workspaceID,
		ScenarioID:   scenarioID,
		Status:       types.RunPending,
		CurrentStage: "INITIALIZATION",
		CurrentYear:  startYear,
		TotalYears:   totalYears,
		StartedAt:    time.Now().UTC(),
	}
	r.runs[runID] = &runSlot{run: run}

	copied := run
	return &copied, nil
}

// Get returns a copy of a run, or nil if unknown.
func (r *RunRegistry) Get(runID string) *types.Run {
	r.mu.Lock()
	slot, ok := r.runs[runID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	copied := slot.run
	return &copied
}

// RunUpdate is a partial update of a run's mutable fields.
type RunUpdate struct {
	Status       *types.RunStatus
	Progress     *int
	CurrentStage *string
	CurrentYear  *int
	ErrorMessage *string
}

// Update applies a partial update under the run's mutex.
//
// Transitions out of a terminal state return Conflict. Progress updates
// below the current value are clamped to keep the monotonic invariant.
// A transition into a terminal state stamps CompletedAt.
func (r *RunRegistry) Update(runID string, update RunUpdate) (*types.Run, error) {
	r.mu.Lock()
	slot, ok := r.runs[runID]
	r.mu.Unlock()
	if !ok {
		return nil, errs.NotFound("update_run", runID)
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	run := &slot.run
	if update.Status != nil {
		if run.Status.IsTerminal() && *update.Status != run.Status {
			return nil, errs.Conflict("update_run", fmt.Errorf("run %s already %s", runID, run.Status))
		}
		if !run.Status.IsTerminal() && *update.Status != run.Status {
			run.Status = *update.Status
			if run.Status.IsTerminal() {
				now := time.Now().UTC()
				run.CompletedAt = &now
			}
		}
	}
	if update.Progress != nil && *update.Progress > run.Progress {
		run.Progress = *update.Progress
	}
	if update.CurrentStage != nil {
		run.CurrentStage = *update.CurrentStage
	}
	if update.CurrentYear != nil {
		run.CurrentYear = *update.CurrentYear
	}
	if update.ErrorMessage != nil {
		run.ErrorMessage = *update.ErrorMessage
	}

	copied := *run
	return &copied, nil
}

// Remove forgets a run. The executor does not call it; finished runs stay
// in the registry.
func (r *RunRegistry) Remove(runID string) {
	r.mu.Lock()
	delete(r.runs, runID)
	r.mu.Unlock()
}

// ActiveForWorkspace reports whether any run of the workspace is pending
// or running. Export refuses to bundle a workspace in this state.
func (r *RunRegistry) ActiveForWorkspace(workspaceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, slot := range r.runs {
		slot.mu.Lock()
		active := slot.run.WorkspaceID == workspaceID && !slot.run.Status.IsTerminal()
		slot.mu.Unlock()
		if active {
			return true
		}
	}
	return false
}
