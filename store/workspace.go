package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/iox"
	"github.com/justapithecus/planalign/seeds"
	"github.com/justapithecus/planalign/types"
)

// workspaceRecord is the on-disk shape of workspace.json.
type workspaceRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ListWorkspaces returns a summary for every workspace under the root,
// sorted by directory name. Directories without workspace.json are treated
// as not-yet-created and skipped.
func (s *Store) ListWorkspaces() ([]types.WorkspaceSummary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.IO("list_workspaces", s.root, err)
	}

	var summaries []types.WorkspaceSummary
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ws, err := s.GetWorkspace(entry.Name())
		if err != nil || ws == nil {
			continue
		}

		scenarios, _ := s.ListScenarios(ws.ID)
		var lastRunAt *time.Time
		for _, sc := range scenarios {
			if sc.LastRunAt != nil && (lastRunAt == nil || sc.LastRunAt.After(*lastRunAt)) {
				t := *sc.LastRunAt
				lastRunAt = &t
			}
		}

		summaries = append(summaries, types.WorkspaceSummary{
			ID:               ws.ID,
			Name:             ws.Name,
			Description:      ws.Description,
			CreatedAt:        ws.CreatedAt,
			ScenarioCount:    len(scenarios),
			LastRunAt:        lastRunAt,
			StorageUsedBytes: iox.DirSize(ws.StoragePath),
		})
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

// GetWorkspace returns a workspace by id, or nil if absent.
func (s *Store) GetWorkspace(workspaceID string) (*types.Workspace, error) {
	data, err := os.ReadFile(s.workspaceJSONPath(workspaceID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.IO("get_workspace", workspaceID, err)
	}

	var rec workspaceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errs.IO("get_workspace", workspaceID, err)
	}

	baseConfig := types.ConfigMap{}
	if raw, err := os.ReadFile(s.baseConfigPath(workspaceID)); err == nil {
		_ = yaml.Unmarshal(raw, &baseConfig)
	}

	return &types.Workspace{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		CreatedAt:   parseTime(rec.CreatedAt),
		UpdatedAt:   parseTime(rec.UpdatedAt),
		BaseConfig:  baseConfig,
		StoragePath: s.workspacePath(workspaceID),
	}, nil
}

// CreateWorkspace creates a workspace directory tree and persists its
// metadata. The seed sections of the base config are validated first; an
// invalid config rejects the whole create.
func (s *Store) CreateWorkspace(create types.WorkspaceCreate, defaultConfig types.ConfigMap) (*types.Workspace, error) {
	baseConfig := create.BaseConfig
	if baseConfig == nil {
		baseConfig = defaultConfig
	}
	if baseConfig == nil {
		baseConfig = types.ConfigMap{}
	}

	if fieldErrs := seeds.ValidateConfig(baseConfig, s.seedExpectations); len(fieldErrs) > 0 {
		return nil, &errs.ValidationError{Fields: fieldErrs}
	}

	workspaceID := uuid.New().String()
	workspacePath := s.workspacePath(workspaceID)

	for _, dir := range []string{workspacePath, filepath.Join(workspacePath, "scenarios"), filepath.Join(workspacePath, "comparisons")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.IO("create_workspace", dir, err)
		}
	}

	now := time.Now().UTC()

	// base_config.yaml first; workspace.json last so a crash mid-create
	// leaves a directory readers ignore.
	if err := s.writeBaseConfig(workspaceID, baseConfig); err != nil {
		return nil, err
	}
	rec := workspaceRecord{
		ID:          workspaceID,
		Name:        create.Name,
		Description: create.Description,
		CreatedAt:   now.Format(time.RFC3339Nano),
		UpdatedAt:   now.Format(time.RFC3339Nano),
	}
	if err := s.writeWorkspaceRecord(workspaceID, rec); err != nil {
		return nil, err
	}

	s.logger.Info("workspace created", map[string]any{"workspace_id": workspaceID, "name": create.Name})

	return &types.Workspace{
		ID:          workspaceID,
		Name:        create.Name,
		Description: create.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
		BaseConfig:  baseConfig,
		StoragePath: workspacePath,
	}, nil
}

// UpdateWorkspace applies a partial update. Nil fields are untouched.
func (s *Store) UpdateWorkspace(workspaceID string, update types.WorkspaceUpdate) (*types.Workspace, error) {
	data, err := os.ReadFile(s.workspaceJSONPath(workspaceID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFound("update_workspace", workspaceID)
		}
		return nil, errs.IO("update_workspace", workspaceID, err)
	}

	var rec workspaceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errs.IO("update_workspace", workspaceID, err)
	}

	if update.BaseConfig != nil {
		if fieldErrs := seeds.ValidateConfig(update.BaseConfig, s.seedExpectations); len(fieldErrs) > 0 {
			return nil, &errs.ValidationError{Fields: fieldErrs}
		}
	}

	if update.Name != nil {
		rec.Name = *update.Name
	}
	if update.Description != nil {
		rec.Description = *update.Description
	}
	rec.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)

	if update.BaseConfig != nil {
		if err := s.writeBaseConfig(workspaceID, update.BaseConfig); err != nil {
			return nil, err
		}
	}
	if err := s.writeWorkspaceRecord(workspaceID, rec); err != nil {
		return nil, err
	}

	return s.GetWorkspace(workspaceID)
}

// DeleteWorkspace removes a workspace and all its scenarios, runs, and
// artifacts.
func (s *Store) DeleteWorkspace(workspaceID string) error {
	workspacePath := s.workspacePath(workspaceID)
	if _, err := os.Stat(workspacePath); err != nil {
		if os.IsNotExist(err) {
			return errs.NotFound("delete_workspace", workspaceID)
		}
		return errs.IO("delete_workspace", workspaceID, err)
	}
	if err := os.RemoveAll(workspacePath); err != nil {
		return errs.IO("delete_workspace", workspaceID, err)
	}
	s.logger.Info("workspace deleted", map[string]any{"workspace_id": workspaceID})
	return nil
}

// UpdateBaseConfigKey sets one key in base_config.yaml by dot-separated
// path (e.g. "setup.census_parquet_path"). Intermediate mappings are
// created as needed.
func (s *Store) UpdateBaseConfigKey(workspaceID, keyPath string, value any) error {
	raw, err := os.ReadFile(s.baseConfigPath(workspaceID))
	if err != nil {
		if os.IsNotExist(err) {
			return errs.NotFound("update_base_config_key", workspaceID)
		}
		return errs.IO("update_base_config_key", workspaceID, err)
	}

	cfg := types.ConfigMap{}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return errs.IO("update_base_config_key", workspaceID, err)
	}

	keys := strings.Split(keyPath, ".")
	current := cfg
	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	current[keys[len(keys)-1]] = value

	return s.writeBaseConfig(workspaceID, cfg)
}

func (s *Store) writeWorkspaceRecord(workspaceID string, rec workspaceRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errs.IO("write_workspace", workspaceID, err)
	}
	if err := iox.WriteFileAtomic(s.workspaceJSONPath(workspaceID), data, 0o644); err != nil {
		return errs.IO("write_workspace", workspaceID, err)
	}
	return nil
}

func (s *Store) writeBaseConfig(workspaceID string, cfg types.ConfigMap) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errs.IO("write_base_config", workspaceID, err)
	}
	if err := iox.WriteFileAtomic(s.baseConfigPath(workspaceID), data, 0o644); err != nil {
		return errs.IO("write_base_config", workspaceID, err)
	}
	return nil
}

func parseTime(raw string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
