package types

import "time"

// ManifestContents inventories a workspace bundle.
type ManifestContents struct {
	ScenarioCount  int      `json:"scenario_count"`
	Scenarios      []string `json:"scenarios"`
	FileCount      int      `json:"file_count"`
	TotalSizeBytes int64    `json:"total_size_bytes"`
	// ChecksumSHA256 is the hex SHA-256 of workspace.json at export time.
	ChecksumSHA256 string `json:"checksum_sha256"`
}

// ExportManifest is the manifest.json header at the root of a bundle.
type ExportManifest struct {
	Version       string           `json:"version"`
	ExportDate    time.Time        `json:"export_date"`
	AppVersion    string           `json:"app_version"`
	WorkspaceID   string           `json:"workspace_id"`
	WorkspaceName string           `json:"workspace_name"`
	Contents      ManifestContents `json:"contents"`
}

// ConflictResolution selects how an import handles a name collision.
type ConflictResolution string

const (
	ResolutionRename  ConflictResolution = "rename"
	ResolutionReplace ConflictResolution = "replace"
	ResolutionSkip    ConflictResolution = "skip"
)

// ImportConflict describes a name collision found during validation.
type ImportConflict struct {
	ExistingWorkspaceID   string `json:"existing_workspace_id"`
	ExistingWorkspaceName string `json:"existing_workspace_name"`
	SuggestedName         string `json:"suggested_name"`
}

// ImportValidation is the result of validating a bundle before import.
type ImportValidation struct {
	Valid    bool            `json:"valid"`
	Manifest *ExportManifest `json:"manifest,omitempty"`
	Conflict *ImportConflict `json:"conflict,omitempty"`
	Warnings []string        `json:"warnings"`
	Errors   []string        `json:"errors"`
}

// ImportStatus is the outcome class of an import.
type ImportStatus string

const (
	ImportSuccess ImportStatus = "success"
	ImportPartial ImportStatus = "partial"
	ImportSkipped ImportStatus = "skipped"
	ImportFailed  ImportStatus = "failed"
)

// ImportResult reports a completed import.
type ImportResult struct {
	WorkspaceID   string       `json:"workspace_id"`
	Name          string       `json:"name"`
	ScenarioCount int          `json:"scenario_count"`
	Status        ImportStatus `json:"status"`
	Warnings      []string     `json:"warnings"`
}

// ExportResult reports a completed export.
type ExportResult struct {
	WorkspaceID   string `json:"workspace_id"`
	WorkspaceName string `json:"workspace_name"`
	Filename      string `json:"filename,omitempty"`
	SizeBytes     int64  `json:"size_bytes,omitempty"`
	Failed        bool   `json:"failed,omitempty"`
	Error         string `json:"error,omitempty"`
}

// BulkItemState is the per-item status of a bulk export/import operation.
type BulkItemState struct {
	Key    string `json:"key"`
	Status string `json:"status"` // pending, running, completed, failed, skipped
	Error  string `json:"error,omitempty"`
}

// BulkOperation tracks a bulk export or import by operation id.
type BulkOperation struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"` // export or import
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Items       []BulkItemState `json:"items"`
}
