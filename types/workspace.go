// Package types defines the core domain entities shared across the
// control plane: workspaces, scenarios, runs, telemetry snapshots,
// seed bands, batches, and bundle manifests.
package types

import "time"

// ConfigMap is a nested configuration mapping as loaded from YAML.
// Values are null | bool | number | string | []any | ConfigMap-shaped maps.
// Sections validated by the seeds package get typed views; the rest stays
// opaque to avoid schema churn.
type ConfigMap = map[string]any

// Workspace is the top-level container for configuration and scenarios.
// It exclusively owns a directory tree under the workspaces root.
type Workspace struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	// BaseConfig is loaded from base_config.yaml, not stored in workspace.json.
	BaseConfig ConfigMap `json:"-"`
	// StoragePath is the absolute path of the workspace directory.
	StoragePath string `json:"-"`
}

// WorkspaceSummary is the listing row for a workspace.
type WorkspaceSummary struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ScenarioCount    int        `json:"scenario_count"`
	LastRunAt        *time.Time `json:"last_run_at,omitempty"`
	StorageUsedBytes int64      `json:"storage_used_bytes"`
}

// WorkspaceCreate is the input for creating a workspace.
type WorkspaceCreate struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	BaseConfig  ConfigMap `json:"base_config,omitempty"`
}

// WorkspaceUpdate is a partial workspace update. Nil fields are untouched.
type WorkspaceUpdate struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	BaseConfig  ConfigMap `json:"base_config,omitempty"`
}
