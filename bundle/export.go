package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/log"
	"github.com/justapithecus/planalign/metrics"
	"github.com/justapithecus/planalign/store"
	"github.com/justapithecus/planalign/types"
)

// MaxImportSizeBytes is the import size limit (1 GiB).
const MaxImportSizeBytes = 1 * 1024 * 1024 * 1024

// Service exports and imports workspace bundles.
type Service struct {
	store     *store.Store
	logger    *log.Logger
	collector *metrics.Collector
	outputDir string
	uploader  *Uploader

	bulk *bulkTracker
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithCollector sets the metrics collector.
func WithCollector(c *metrics.Collector) ServiceOption {
	return func(s *Service) { s.collector = c }
}

// WithOutputDir sets where exported bundles are written
// (default: a planalign_exports directory under the OS temp dir).
func WithOutputDir(dir string) ServiceOption {
	return func(s *Service) { s.outputDir = dir }
}

// WithUploader mirrors finished bundles to S3.
func WithUploader(u *Uploader) ServiceOption {
	return func(s *Service) { s.uploader = u }
}

// NewService creates a bundle service over the given store.
func NewService(st *store.Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:     st,
		logger:    log.NewLogger(log.RunContext{}),
		outputDir: filepath.Join(os.TempDir(), "planalign_exports"),
		bulk:      newBulkTracker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildManifest inventories a workspace for export. The checksum covers
// the workspace.json bytes at export time.
func (s *Service) BuildManifest(workspaceID, workspaceName, workspacePath string) (*types.ExportManifest, error) {
	var scenarios []string
	if listed, err := s.store.ListScenarios(workspaceID); err == nil {
		for _, sc := range listed {
			scenarios = append(scenarios, sc.Name)
		}
	}

	var fileCount int
	var totalSize int64
	_ = filepath.Walk(workspacePath, func(_ string, info os.FileInfo, err error) error {
		if err == nil && info.Mode().IsRegular() {
			fileCount++
			totalSize += info.Size()
		}
		return nil
	})

	checksum := ""
	if data, err := os.ReadFile(filepath.Join(workspacePath, "workspace.json")); err == nil {
		sum := sha256.Sum256(data)
		checksum = hex.EncodeToString(sum[:])
	}

	return &types.ExportManifest{
		Version:       types.ManifestSchemaVersion,
		ExportDate:    time.Now().UTC(),
		AppVersion:    types.Version,
		WorkspaceID:   workspaceID,
		WorkspaceName: workspaceName,
		Contents: types.ManifestContents{
			ScenarioCount:  len(scenarios),
			Scenarios:      scenarios,
			FileCount:      fileCount,
			TotalSizeBytes: totalSize,
			ChecksumSHA256: checksum,
		},
	}, nil
}

// Export bundles a workspace into a single compressed archive named
// <safe_name>_YYYYMMDD_HHMMSS.zst. Export is refused while any simulation
// in the workspace is running.
func (s *Service) Export(ctx context.Context, workspaceID string) (string, *types.ExportResult, error) {
	ws, err := s.store.GetWorkspace(workspaceID)
	if err != nil {
		return "", nil, err
	}
	if ws == nil {
		return "", nil, errs.NotFound("export_workspace", workspaceID)
	}

	if s.workspaceBusy(workspaceID) {
		return "", nil, errs.Conflict("export_workspace", fmt.Errorf("a simulation is running in workspace %s", workspaceID))
	}

	filename := fmt.Sprintf("%s_%s.%s", SanitizeName(ws.Name), time.Now().UTC().Format("20060102_150405"), Extension)
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", nil, errs.IO("export_workspace", s.outputDir, err)
	}
	archivePath := filepath.Join(s.outputDir, filename)

	manifest, err := s.BuildManifest(workspaceID, ws.Name, ws.StoragePath)
	if err != nil {
		return "", nil, err
	}

	size, err := Pack(ws.StoragePath, manifest, archivePath)
	if err != nil {
		result := &types.ExportResult{WorkspaceID: workspaceID, WorkspaceName: ws.Name, Failed: true, Error: err.Error()}
		return archivePath, result, err
	}

	if s.uploader != nil {
		if err := s.uploader.Upload(ctx, archivePath); err != nil {
			s.logger.Warn("bundle upload failed", map[string]any{"error": err.Error()})
		}
	}

	s.collector.IncBundleExported()
	s.logger.Info("workspace exported", map[string]any{
		"workspace_id": workspaceID,
		"archive":      archivePath,
		"size_bytes":   size,
	})

	return archivePath, &types.ExportResult{
		WorkspaceID:   workspaceID,
		WorkspaceName: ws.Name,
		Filename:      filename,
		SizeBytes:     size,
	}, nil
}

// Validate checks a bundle before import: size limit, archive integrity,
// manifest schema, name conflicts (with a suggested rename), and schema
// version skew.
func (s *Service) Validate(ctx context.Context, archivePath string, fileSize int64) (*types.ImportValidation, error) {
	validation := &types.ImportValidation{Warnings: []string{}, Errors: []string{}}

	if fileSize > MaxImportSizeBytes {
		validation.Errors = append(validation.Errors,
			fmt.Sprintf("file size (%.1f MB) exceeds maximum allowed (1 GB)", float64(fileSize)/(1024*1024)))
		return validation, nil
	}

	manifest, err := ReadManifest(archivePath)
	if err != nil {
		validation.Errors = append(validation.Errors, err.Error())
		return validation, nil
	}
	validation.Manifest = manifest

	if manifest.Version > types.ManifestSchemaVersion {
		validation.Warnings = append(validation.Warnings,
			fmt.Sprintf("bundle was created with a newer schema (%s) than current (%s); some content may not import correctly",
				manifest.Version, types.ManifestSchemaVersion))
	}

	existing, err := s.store.ListWorkspaces()
	if err != nil {
		return nil, err
	}
	for _, ws := range existing {
		if strings.EqualFold(ws.Name, manifest.WorkspaceName) {
			validation.Conflict = &types.ImportConflict{
				ExistingWorkspaceID:   ws.ID,
				ExistingWorkspaceName: ws.Name,
				SuggestedName:         SuggestUniqueName(manifest.WorkspaceName, existing),
			}
			break
		}
	}

	validation.Valid = len(validation.Errors) == 0
	return validation, nil
}

// Import extracts a bundle into a fresh workspace. A checksum mismatch on
// workspace.json is a warning, not a blocker. Under resolution=replace the
// conflicting workspace is deleted first; resolution=skip returns without
// importing.
func (s *Service) Import(ctx context.Context, archivePath string, resolution types.ConflictResolution, newName string) (*types.ImportResult, error) {
	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, errs.IO("import_workspace", archivePath, err)
	}
	if info.Size() > MaxImportSizeBytes {
		return nil, errs.New(errs.ErrResourceLimit, "import_workspace", archivePath,
			fmt.Errorf("bundle exceeds the 1 GiB import limit"))
	}

	validation, err := s.Validate(ctx, archivePath, info.Size())
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return nil, errs.New(errs.ErrIO, "import_workspace", archivePath,
			fmt.Errorf("invalid bundle: %s", strings.Join(validation.Errors, "; ")))
	}

	manifest := validation.Manifest
	warnings := append([]string{}, validation.Warnings...)

	finalName := manifest.WorkspaceName
	if validation.Conflict != nil {
		switch resolution {
		case types.ResolutionRename:
			finalName = validation.Conflict.SuggestedName
			if newName != "" {
				finalName = newName
			}
		case types.ResolutionReplace:
			if err := s.store.DeleteWorkspace(validation.Conflict.ExistingWorkspaceID); err != nil {
				return nil, err
			}
		case types.ResolutionSkip:
			return &types.ImportResult{
				Name:     manifest.WorkspaceName,
				Status:   types.ImportSkipped,
				Warnings: warnings,
			}, nil
		default:
			return nil, errs.Conflict("import_workspace",
				fmt.Errorf("workspace name %q already exists, specify rename or replace", manifest.WorkspaceName))
		}
	}

	tempDir, err := os.MkdirTemp("", "planalign_import_")
	if err != nil {
		return nil, errs.IO("import_workspace", archivePath, err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	extracted, err := Unpack(archivePath, tempDir)
	if err != nil {
		return nil, err
	}

	// Verify workspace.json against the manifest checksum. Warn only.
	if data, err := os.ReadFile(filepath.Join(tempDir, "workspace.json")); err == nil {
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != extracted.Contents.ChecksumSHA256 {
			warnings = append(warnings, "workspace checksum mismatch - file may have been modified")
		}
	}

	imported, err := s.store.ImportWorkspaceTree(tempDir, finalName, ManifestName)
	if err != nil {
		return nil, err
	}

	s.collector.IncBundleImported()
	s.logger.Info("workspace imported", map[string]any{
		"workspace_id": imported.WorkspaceID,
		"name":         finalName,
		"scenarios":    imported.ScenarioCount,
	})

	status := types.ImportSuccess
	if len(warnings) > 0 {
		status = types.ImportPartial
	}
	return &types.ImportResult{
		WorkspaceID:   imported.WorkspaceID,
		Name:          finalName,
		ScenarioCount: imported.ScenarioCount,
		Status:        status,
		Warnings:      warnings,
	}, nil
}

// workspaceBusy reports whether any run or scenario of the workspace is
// still in flight.
func (s *Service) workspaceBusy(workspaceID string) bool {
	if s.store.Runs().ActiveForWorkspace(workspaceID) {
		return true
	}
	scenarios, err := s.store.ListScenarios(workspaceID)
	if err != nil {
		return false
	}
	for _, sc := range scenarios {
		if sc.Status == types.ScenarioRunning || sc.Status == types.ScenarioQueued {
			return true
		}
	}
	return false
}

// SanitizeName maps a workspace name to a filename-safe token: runs of
// anything outside [A-Za-z0-9_-] become single underscores.
func SanitizeName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "workspace"
	}
	return out
}

// SuggestUniqueName appends " (k)" for the smallest unused k >= 2,
// case-insensitively.
func SuggestUniqueName(baseName string, existing []types.WorkspaceSummary) string {
	names := make(map[string]bool, len(existing))
	for _, ws := range existing {
		names[strings.ToLower(ws.Name)] = true
	}
	for k := 2; ; k++ {
		candidate := fmt.Sprintf("%s (%d)", baseName, k)
		if !names[strings.ToLower(candidate)] {
			return candidate
		}
	}
}
