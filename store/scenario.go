package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/iox"
	"github.com/justapithecus/planalign/seeds"
	"github.com/justapithecus/planalign/types"
)

// scenarioRecord is the on-disk shape of scenario.json.
type scenarioRecord struct {
	ID              string          `json:"id"`
	WorkspaceID     string          `json:"workspace_id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	ConfigOverrides types.ConfigMap `json:"config_overrides"`
	Status          string          `json:"status"`
	CreatedAt       string          `json:"created_at"`
	LastRunAt       string          `json:"last_run_at,omitempty"`
	LastRunID       string          `json:"last_run_id,omitempty"`
	ResultsSummary  types.ConfigMap `json:"results_summary,omitempty"`
}

func (rec *scenarioRecord) toScenario() *types.Scenario {
	sc := &types.Scenario{
		ID:              rec.ID,
		WorkspaceID:     rec.WorkspaceID,
		Name:            rec.Name,
		Description:     rec.Description,
		ConfigOverrides: rec.ConfigOverrides,
		Status:          types.ScenarioStatus(rec.Status),
		CreatedAt:       parseTime(rec.CreatedAt),
		LastRunID:       rec.LastRunID,
		ResultsSummary:  rec.ResultsSummary,
	}
	if sc.ConfigOverrides == nil {
		sc.ConfigOverrides = types.ConfigMap{}
	}
	if sc.Status == "" {
		sc.Status = types.ScenarioNotRun
	}
	if rec.LastRunAt != "" {
		t := parseTime(rec.LastRunAt)
		sc.LastRunAt = &t
	}
	return sc
}

// ListScenarios returns every scenario in a workspace, sorted by id.
func (s *Store) ListScenarios(workspaceID string) ([]types.Scenario, error) {
	entries, err := os.ReadDir(s.scenariosPath(workspaceID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.IO("list_scenarios", workspaceID, err)
	}

	var scenarios []types.Scenario
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sc, err := s.GetScenario(workspaceID, entry.Name())
		if err != nil || sc == nil {
			continue
		}
		scenarios = append(scenarios, *sc)
	}

	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].ID < scenarios[j].ID })
	return scenarios, nil
}

// GetScenario returns a scenario by id, or nil if absent.
func (s *Store) GetScenario(workspaceID, scenarioID string) (*types.Scenario, error) {
	data, err := os.ReadFile(s.scenarioJSONPath(workspaceID, scenarioID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.IO("get_scenario", scenarioID, err)
	}

	var rec scenarioRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errs.IO("get_scenario", scenarioID, err)
	}
	return rec.toScenario(), nil
}

// CreateScenario creates a scenario under a workspace. Seed sections of
// the overrides are validated first; invalid overrides reject the create.
func (s *Store) CreateScenario(workspaceID string, create types.ScenarioCreate) (*types.Scenario, error) {
	if _, err := os.Stat(s.workspacePath(workspaceID)); err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFound("create_scenario", workspaceID)
		}
		return nil, errs.IO("create_scenario", workspaceID, err)
	}

	overrides := create.ConfigOverrides
	if overrides == nil {
		overrides = types.ConfigMap{}
	}
	if fieldErrs := seeds.ValidateConfig(overrides, s.seedExpectations); len(fieldErrs) > 0 {
		return nil, &errs.ValidationError{Fields: fieldErrs}
	}

	scenarioID := uuid.New().String()
	scenarioPath := s.scenarioPath(workspaceID, scenarioID)

	for _, dir := range []string{scenarioPath, filepath.Join(scenarioPath, "results"), filepath.Join(scenarioPath, "runs")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.IO("create_scenario", dir, err)
		}
	}

	now := time.Now().UTC()
	rec := scenarioRecord{
		ID:              scenarioID,
		WorkspaceID:     workspaceID,
		Name:            create.Name,
		Description:     create.Description,
		ConfigOverrides: overrides,
		Status:          string(types.ScenarioNotRun),
		CreatedAt:       now.Format(time.RFC3339Nano),
	}

	if err := s.writeOverridesYAML(workspaceID, scenarioID, overrides); err != nil {
		return nil, err
	}
	if err := s.writeScenarioRecord(workspaceID, scenarioID, &rec); err != nil {
		return nil, err
	}

	s.logger.Info("scenario created", map[string]any{
		"workspace_id": workspaceID,
		"scenario_id":  scenarioID,
		"name":         create.Name,
	})

	return rec.toScenario(), nil
}

// UpdateScenario applies a partial update. Editing overrides while the
// scenario is running is the caller's responsibility to avoid.
func (s *Store) UpdateScenario(workspaceID, scenarioID string, update types.ScenarioUpdate) (*types.Scenario, error) {
	mu := s.scenarioLock(workspaceID, scenarioID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := s.readScenarioRecord(workspaceID, scenarioID, "update_scenario")
	if err != nil {
		return nil, err
	}

	if update.ConfigOverrides != nil {
		if fieldErrs := seeds.ValidateConfig(update.ConfigOverrides, s.seedExpectations); len(fieldErrs) > 0 {
			return nil, &errs.ValidationError{Fields: fieldErrs}
		}
	}

	if update.Name != nil {
		rec.Name = *update.Name
	}
	if update.Description != nil {
		rec.Description = *update.Description
	}
	if update.ConfigOverrides != nil {
		rec.ConfigOverrides = update.ConfigOverrides
		if err := s.writeOverridesYAML(workspaceID, scenarioID, update.ConfigOverrides); err != nil {
			return nil, err
		}
	}

	if err := s.writeScenarioRecord(workspaceID, scenarioID, rec); err != nil {
		return nil, err
	}
	return rec.toScenario(), nil
}

// UpdateScenarioStatus transitions a scenario's status after a run event.
// When runID is non-empty, last_run_id and last_run_at are stamped.
func (s *Store) UpdateScenarioStatus(workspaceID, scenarioID string, status types.ScenarioStatus, runID string, resultsSummary types.ConfigMap) (*types.Scenario, error) {
	mu := s.scenarioLock(workspaceID, scenarioID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := s.readScenarioRecord(workspaceID, scenarioID, "update_scenario_status")
	if err != nil {
		return nil, err
	}

	rec.Status = string(status)
	if runID != "" {
		rec.LastRunID = runID
		rec.LastRunAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if resultsSummary != nil {
		rec.ResultsSummary = resultsSummary
	}

	if err := s.writeScenarioRecord(workspaceID, scenarioID, rec); err != nil {
		return nil, err
	}
	return rec.toScenario(), nil
}

// DeleteScenario removes a scenario and all its contents.
func (s *Store) DeleteScenario(workspaceID, scenarioID string) error {
	mu := s.scenarioLock(workspaceID, scenarioID)
	mu.Lock()
	defer mu.Unlock()

	scenarioPath := s.scenarioPath(workspaceID, scenarioID)
	if _, err := os.Stat(scenarioPath); err != nil {
		if os.IsNotExist(err) {
			return errs.NotFound("delete_scenario", scenarioID)
		}
		return errs.IO("delete_scenario", scenarioID, err)
	}
	if err := os.RemoveAll(scenarioPath); err != nil {
		return errs.IO("delete_scenario", scenarioID, err)
	}
	return nil
}

// MergedConfig returns deep-merge(workspace base config, scenario overrides).
// Returns nil when either entity is absent.
func (s *Store) MergedConfig(workspaceID, scenarioID string) (types.ConfigMap, error) {
	ws, err := s.GetWorkspace(workspaceID)
	if err != nil || ws == nil {
		return nil, err
	}
	sc, err := s.GetScenario(workspaceID, scenarioID)
	if err != nil || sc == nil {
		return nil, err
	}
	return DeepMerge(ws.BaseConfig, sc.ConfigOverrides), nil
}

func (s *Store) readScenarioRecord(workspaceID, scenarioID, op string) (*scenarioRecord, error) {
	data, err := os.ReadFile(s.scenarioJSONPath(workspaceID, scenarioID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFound(op, scenarioID)
		}
		return nil, errs.IO(op, scenarioID, err)
	}
	var rec scenarioRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errs.IO(op, scenarioID, err)
	}
	return &rec, nil
}

func (s *Store) writeScenarioRecord(workspaceID, scenarioID string, rec *scenarioRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errs.IO("write_scenario", scenarioID, err)
	}
	if err := iox.WriteFileAtomic(s.scenarioJSONPath(workspaceID, scenarioID), data, 0o644); err != nil {
		return errs.IO("write_scenario", scenarioID, err)
	}
	return nil
}

func (s *Store) writeOverridesYAML(workspaceID, scenarioID string, overrides types.ConfigMap) error {
	data, err := yaml.Marshal(overrides)
	if err != nil {
		return errs.IO("write_overrides", scenarioID, err)
	}
	path := filepath.Join(s.scenarioPath(workspaceID, scenarioID), "overrides.yaml")
	if err := iox.WriteFileAtomic(path, data, 0o644); err != nil {
		return errs.IO("write_overrides", scenarioID, err)
	}
	return nil
}
