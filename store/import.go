package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/iox"
)

// ImportedWorkspace reports a workspace tree adopted by the store.
type ImportedWorkspace struct {
	WorkspaceID   string
	ScenarioCount int
}

// ImportWorkspaceTree adopts an extracted workspace tree: a fresh
// workspace id is minted, the tree is copied under the root (skipping the
// named bundle metadata file), and workspace.json is rewritten with the
// new id, the resolved name, and a fresh updated_at.
func (s *Store) ImportWorkspaceTree(srcDir, name, skipName string) (*ImportedWorkspace, error) {
	workspaceID := uuid.New().String()
	workspacePath := s.workspacePath(workspaceID)
	if err := os.MkdirAll(workspacePath, 0o755); err != nil {
		return nil, errs.IO("import_workspace", workspacePath, err)
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, errs.IO("import_workspace", srcDir, err)
	}
	for _, entry := range entries {
		if entry.Name() == skipName {
			continue
		}
		src := filepath.Join(srcDir, entry.Name())
		dst := filepath.Join(workspacePath, entry.Name())
		if entry.IsDir() {
			if err := iox.CopyTree(src, dst); err != nil {
				return nil, errs.IO("import_workspace", dst, err)
			}
			continue
		}
		if err := iox.CopyFile(src, dst); err != nil {
			return nil, errs.IO("import_workspace", dst, err)
		}
	}

	// Rewrite identity. A bundle without workspace.json still imports;
	// the record is created from scratch.
	data := map[string]any{}
	if raw, err := os.ReadFile(s.workspaceJSONPath(workspaceID)); err == nil {
		_ = json.Unmarshal(raw, &data)
	}
	data["id"] = workspaceID
	data["name"] = name
	data["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if _, ok := data["created_at"]; !ok {
		data["created_at"] = data["updated_at"]
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, errs.IO("import_workspace", workspaceID, err)
	}
	if err := iox.WriteFileAtomic(s.workspaceJSONPath(workspaceID), encoded, 0o644); err != nil {
		return nil, errs.IO("import_workspace", workspaceID, err)
	}

	scenarioCount := 0
	if scenarioEntries, err := os.ReadDir(s.scenariosPath(workspaceID)); err == nil {
		for _, entry := range scenarioEntries {
			if !entry.IsDir() {
				continue
			}
			if _, err := os.Stat(s.scenarioJSONPath(workspaceID, entry.Name())); err == nil {
				scenarioCount++
			}
		}
	}

	return &ImportedWorkspace{WorkspaceID: workspaceID, ScenarioCount: scenarioCount}, nil
}
