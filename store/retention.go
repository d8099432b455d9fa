package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/iox"
	"github.com/justapithecus/planalign/types"
)

// CleanupResult reports one retention pass.
type CleanupResult struct {
	RemovedCount int      `json:"removed_count"`
	BytesFreed   int64    `json:"bytes_freed"`
	RemovedRuns  []string `json:"removed_runs"`
	// Failures lists run ids whose deletion failed (best-effort pass).
	Failures []string `json:"failures,omitempty"`
}

// CleanupOldRuns deletes the oldest archived runs beyond maxRuns for one
// scenario (0 = unlimited, no-op). Runs are ordered by the started_at in
// their run_metadata.json; runs without readable metadata sort oldest.
//
// The pass holds the scenario mutex and refuses to prune while the
// scenario status is running. The scenario's active simulation.duckdb at
// the scenario root is never touched — only directories under runs/.
func (s *Store) CleanupOldRuns(workspaceID, scenarioID string, maxRuns int) (*CleanupResult, error) {
	result := &CleanupResult{RemovedRuns: []string{}}
	if maxRuns <= 0 {
		return result, nil
	}

	mu := s.scenarioLock(workspaceID, scenarioID)
	mu.Lock()
	defer mu.Unlock()

	sc, err := s.GetScenario(workspaceID, scenarioID)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, errs.NotFound("cleanup_old_runs", scenarioID)
	}
	if sc.Status == types.ScenarioRunning {
		return nil, errs.Conflict("cleanup_old_runs", fmt.Errorf("scenario %s is running", scenarioID))
	}

	runsDir := s.RunsPath(workspaceID, scenarioID)
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, errs.IO("cleanup_old_runs", runsDir, err)
	}

	type runEntry struct {
		id        string
		startedAt time.Time
	}
	var runs []runEntry
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		runs = append(runs, runEntry{
			id:        entry.Name(),
			startedAt: readRunStartedAt(filepath.Join(runsDir, entry.Name())),
		})
	}

	if len(runs) <= maxRuns {
		return result, nil
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].startedAt.Equal(runs[j].startedAt) {
			return runs[i].id < runs[j].id
		}
		return runs[i].startedAt.Before(runs[j].startedAt)
	})

	for _, run := range runs[:len(runs)-maxRuns] {
		runDir := filepath.Join(runsDir, run.id)
		size := iox.DirSize(runDir)
		if err := os.RemoveAll(runDir); err != nil {
			s.logger.Warn("run deletion failed", map[string]any{"run_id": run.id, "error": err.Error()})
			result.Failures = append(result.Failures, run.id)
			continue
		}
		result.RemovedCount++
		result.BytesFreed += size
		result.RemovedRuns = append(result.RemovedRuns, run.id)
	}

	if result.RemovedCount > 0 {
		s.logger.Info("run retention pruned", map[string]any{
			"workspace_id": workspaceID,
			"scenario_id":  scenarioID,
			"removed":      result.RemovedCount,
			"bytes_freed":  result.BytesFreed,
		})
	}

	return result, nil
}

// readRunStartedAt parses started_at from run_metadata.json.
// Missing or malformed metadata returns the zero time, sorting oldest.
func readRunStartedAt(runDir string) time.Time {
	data, err := os.ReadFile(filepath.Join(runDir, "run_metadata.json"))
	if err != nil {
		return time.Time{}
	}
	var meta struct {
		StartedAt string `json:"started_at"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return time.Time{}
	}
	return parseTime(meta.StartedAt)
}
