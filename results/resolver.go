// Package results reads scenario result databases (read-only) and derives
// workforce, event, and DC plan aggregates.
//
// The reader must not run while the scenario's simulator holds the
// database read-write; callers coordinate via scenario status.
package results

import (
	"os"
	"path/filepath"

	"github.com/justapithecus/planalign/store"
)

// DatabaseSource identifies which database in the fallback chain answered.
type DatabaseSource string

const (
	SourceScenario  DatabaseSource = "scenario"
	SourceWorkspace DatabaseSource = "workspace"
	// SourceProject is the shared global database; results may include
	// data from other scenarios.
	SourceProject DatabaseSource = "project"
	SourceAbsent  DatabaseSource = "absent"
)

// ResolvedDatabase is the outcome of database path resolution.
type ResolvedDatabase struct {
	Path   string
	Source DatabaseSource
	Exists bool
}

// Resolver finds the result database for a scenario: first the
// scenario-specific database, then the workspace-level one, then the
// project-global fallback.
type Resolver struct {
	store       *store.Store
	projectPath string
}

// NewResolver creates a resolver. projectPath may be empty when no global
// fallback database is configured.
func NewResolver(st *store.Store, projectPath string) *Resolver {
	return &Resolver{store: st, projectPath: projectPath}
}

// Resolve walks the fallback chain and returns the first existing
// database, or an absent result.
func (r *Resolver) Resolve(workspaceID, scenarioID string) ResolvedDatabase {
	scenarioDB := r.store.ScenarioDatabasePath(workspaceID, scenarioID)
	if fileExists(scenarioDB) {
		return ResolvedDatabase{Path: scenarioDB, Source: SourceScenario, Exists: true}
	}

	workspaceDB := filepath.Join(r.store.WorkspacePath(workspaceID), "simulation.duckdb")
	if fileExists(workspaceDB) {
		return ResolvedDatabase{Path: workspaceDB, Source: SourceWorkspace, Exists: true}
	}

	if r.projectPath != "" && fileExists(r.projectPath) {
		return ResolvedDatabase{Path: r.projectPath, Source: SourceProject, Exists: true}
	}

	return ResolvedDatabase{Source: SourceAbsent}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
