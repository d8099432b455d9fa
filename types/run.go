package types

import "time"

// RunStatus tracks one execution attempt of a scenario.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the status is write-once terminal.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// Run is one execution attempt of a scenario.
//
// Invariants: terminal states are write-once; Progress is monotonically
// non-decreasing; CurrentYear stays within the configured year range.
type Run struct {
	ID           string     `json:"id"`
	WorkspaceID  string     `json:"workspace_id"`
	ScenarioID   string     `json:"scenario_id"`
	Status       RunStatus  `json:"status"`
	Progress     int        `json:"progress"`
	CurrentStage string     `json:"current_stage"`
	CurrentYear  int        `json:"current_year"`
	TotalYears   int        `json:"total_years"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// ArtifactKind classifies files under a run directory.
type ArtifactKind string

const (
	ArtifactEngineDB       ArtifactKind = "engine_db_snapshot"
	ArtifactConfigSnapshot ArtifactKind = "config_snapshot"
	ArtifactRunMetadata    ArtifactKind = "run_metadata"
	ArtifactSpreadsheet    ArtifactKind = "export_spreadsheet"
	ArtifactLog            ArtifactKind = "log"
	ArtifactOther          ArtifactKind = "other"
)

// ArtifactKindForName classifies an artifact file by extension.
func ArtifactKindForName(name string) ArtifactKind {
	switch ext(name) {
	case ".duckdb":
		return ArtifactEngineDB
	case ".yaml", ".yml":
		return ArtifactConfigSnapshot
	case ".json":
		return ArtifactRunMetadata
	case ".xlsx", ".xls":
		return ArtifactSpreadsheet
	case ".log", ".txt", ".bin":
		return ArtifactLog
	}
	return ArtifactOther
}

func ext(name string) string {
	for i := len(name) - 1; i >= 0 && name[i] != '/'; i-- {
		if name[i] == '.' {
			return name[i:]
		}
	}
	return ""
}

// RunMetadata is the run_metadata.json record archived with each run.
type RunMetadata struct {
	RunID           string    `json:"run_id"`
	ScenarioID      string    `json:"scenario_id"`
	ScenarioName    string    `json:"scenario_name"`
	WorkspaceID     string    `json:"workspace_id"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	StartYear       int       `json:"start_year"`
	EndYear         int       `json:"end_year"`
	EventsGenerated int64     `json:"events_generated"`
	Seed            int64     `json:"seed"`
	Status          RunStatus `json:"status"`
}
