package types

import "time"

// BatchStatus tracks a scheduled group of scenario runs.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// BatchScenario is one entry of a batch's per-scenario status vector.
type BatchScenario struct {
	ScenarioID   string         `json:"scenario_id"`
	Name         string         `json:"name"`
	Status       ScenarioStatus `json:"status"`
	Progress     int            `json:"progress"`
	RunID        string         `json:"run_id,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// BatchJob is a scheduled group of scenario runs within one workspace.
// Overall status is failed if any scenario failed, else completed.
// Batch state lives in process memory only; it does not survive restart.
type BatchJob struct {
	ID              string          `json:"id"`
	WorkspaceID     string          `json:"workspace_id"`
	Name            string          `json:"name"`
	Status          BatchStatus     `json:"status"`
	SubmittedAt     time.Time       `json:"submitted_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	DurationSeconds float64         `json:"duration_seconds,omitempty"`
	Parallel        bool            `json:"parallel"`
	ExportFormat    string          `json:"export_format,omitempty"`
	Scenarios       []BatchScenario `json:"scenarios"`
}
