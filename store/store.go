// Package store implements the filesystem-backed workspace/scenario state
// store and the in-memory run registry.
//
// Directory layout (stable contract):
//
//	<root>/<workspace_id>/
//	  workspace.json
//	  base_config.yaml
//	  scenarios/<scenario_id>/
//	    scenario.json
//	    overrides.yaml
//	    simulation.duckdb          (active database; written by the engine)
//	    results/                   (latest run artifacts)
//	    runs/<run_id>/             (archived snapshots)
//
// The store is the sole writer of workspace.json, scenario.json, and the
// YAML config files. workspace.json and base_config.yaml are written
// atomically (temp + rename); on create, workspace.json is written last so
// readers treat a directory without it as not-yet-created.
package store

import (
	"sync"

	"path/filepath"

	"github.com/justapithecus/planalign/log"
	"github.com/justapithecus/planalign/seeds"
)

// Store handles filesystem operations for workspaces and scenarios.
// Safe for concurrent use; per-scenario mutation is serialized by a
// fine-grained mutex keyed on (workspace, scenario).
type Store struct {
	root   string
	logger *log.Logger

	// seedExpectations configures stricter seed validation when set.
	seedExpectations seeds.Expectations

	mu       sync.Mutex
	scenMu   map[string]*sync.Mutex
	registry *RunRegistry
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger (default: stderr JSON).
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithSeedExpectations enables strict multiplier count checks on seed
// config validation.
func WithSeedExpectations(exp seeds.Expectations) Option {
	return func(s *Store) { s.seedExpectations = exp }
}

// NewStore creates a store rooted at the workspaces directory.
func NewStore(root string, opts ...Option) *Store {
	s := &Store{
		root:     root,
		logger:   log.NewLogger(log.RunContext{}),
		scenMu:   make(map[string]*sync.Mutex),
		registry: NewRunRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the workspaces root directory.
func (s *Store) Root() string { return s.root }

// Runs returns the in-memory run registry.
func (s *Store) Runs() *RunRegistry { return s.registry }

// scenarioLock returns the mutex serializing mutation of one scenario.
func (s *Store) scenarioLock(workspaceID, scenarioID string) *sync.Mutex {
	key := workspaceID + "/" + scenarioID
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.scenMu[key]
	if !ok {
		mu = &sync.Mutex{}
		s.scenMu[key] = mu
	}
	return mu
}

// Path helpers. All paths derive from the root; nothing outside the
// workspace tree is ever touched.

func (s *Store) workspacePath(workspaceID string) string {
	return filepath.Join(s.root, workspaceID)
}

func (s *Store) workspaceJSONPath(workspaceID string) string {
	return filepath.Join(s.workspacePath(workspaceID), "workspace.json")
}

func (s *Store) baseConfigPath(workspaceID string) string {
	return filepath.Join(s.workspacePath(workspaceID), "base_config.yaml")
}

func (s *Store) scenariosPath(workspaceID string) string {
	return filepath.Join(s.workspacePath(workspaceID), "scenarios")
}

func (s *Store) scenarioPath(workspaceID, scenarioID string) string {
	return filepath.Join(s.scenariosPath(workspaceID), scenarioID)
}

func (s *Store) scenarioJSONPath(workspaceID, scenarioID string) string {
	return filepath.Join(s.scenarioPath(workspaceID, scenarioID), "scenario.json")
}

// WorkspacePath returns the absolute directory of a workspace.
func (s *Store) WorkspacePath(workspaceID string) string {
	return s.workspacePath(workspaceID)
}

// ScenarioPath returns the absolute directory of a scenario.
func (s *Store) ScenarioPath(workspaceID, scenarioID string) string {
	return s.scenarioPath(workspaceID, scenarioID)
}

// ScenarioDatabasePath returns the scenario's active engine database path.
func (s *Store) ScenarioDatabasePath(workspaceID, scenarioID string) string {
	return filepath.Join(s.scenarioPath(workspaceID, scenarioID), "simulation.duckdb")
}

// RunsPath returns the scenario's archived runs directory.
func (s *Store) RunsPath(workspaceID, scenarioID string) string {
	return filepath.Join(s.scenarioPath(workspaceID, scenarioID), "runs")
}
