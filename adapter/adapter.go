// Package adapter defines the run-completed push boundary.
//
// Adapters publish run completion notifications to downstream systems
// (dashboards, pipelines). The executor owns adapter lifecycle; operators
// provide configuration only. Delivery is best-effort: failures are logged
// by the caller and never affect the run outcome.
package adapter

import "context"

// RunCompletedEvent is the payload published when a run reaches a terminal
// state.
type RunCompletedEvent struct {
	RunID           string `json:"run_id"`
	WorkspaceID     string `json:"workspace_id"`
	ScenarioID      string `json:"scenario_id"`
	ScenarioName    string `json:"scenario_name"`
	Status          string `json:"status"` // completed, failed, cancelled
	StartYear       int    `json:"start_year"`
	EndYear         int    `json:"end_year"`
	EventsGenerated int64  `json:"events_generated"`
	DurationMs      int64  `json:"duration_ms"`
	Timestamp       string `json:"timestamp"` // ISO 8601
}

// Adapter publishes run completion events to a downstream system.
type Adapter interface {
	// Publish sends a run completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RunCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
