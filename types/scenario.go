package types

import "time"

// ScenarioStatus tracks the lifecycle of a scenario's most recent run.
type ScenarioStatus string

const (
	ScenarioNotRun    ScenarioStatus = "not_run"
	ScenarioQueued    ScenarioStatus = "queued"
	ScenarioRunning   ScenarioStatus = "running"
	ScenarioCompleted ScenarioStatus = "completed"
	ScenarioFailed    ScenarioStatus = "failed"
	ScenarioCancelled ScenarioStatus = "cancelled"
)

// IsTerminal reports whether the scenario is settled (safe to read results).
func (s ScenarioStatus) IsTerminal() bool {
	switch s {
	case ScenarioNotRun, ScenarioCompleted, ScenarioFailed, ScenarioCancelled:
		return true
	}
	return false
}

// Scenario is a named set of configuration overrides on a workspace.
// Effective config = deep-merge(workspace base config, ConfigOverrides).
type Scenario struct {
	ID              string         `json:"id"`
	WorkspaceID     string         `json:"workspace_id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	ConfigOverrides ConfigMap      `json:"config_overrides"`
	Status          ScenarioStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	LastRunAt       *time.Time     `json:"last_run_at,omitempty"`
	LastRunID       string         `json:"last_run_id,omitempty"`
	ResultsSummary  ConfigMap      `json:"results_summary,omitempty"`
}

// ScenarioCreate is the input for creating a scenario.
type ScenarioCreate struct {
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	ConfigOverrides ConfigMap `json:"config_overrides,omitempty"`
}

// ScenarioUpdate is a partial scenario update. Nil fields are untouched.
type ScenarioUpdate struct {
	Name            *string   `json:"name,omitempty"`
	Description     *string   `json:"description,omitempty"`
	ConfigOverrides ConfigMap `json:"config_overrides,omitempty"`
}
