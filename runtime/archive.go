package runtime

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/justapithecus/planalign/iox"
	"github.com/justapithecus/planalign/log"
	"github.com/justapithecus/planalign/types"
)

// SpreadsheetExporter produces the result spreadsheet for an archived run.
// The implementation is an external collaborator; a nil exporter skips the
// export step.
type SpreadsheetExporter interface {
	// Export writes a spreadsheet for the scenario's result database into
	// outDir and returns the file path.
	Export(ctx context.Context, databasePath, scenarioName string, cfg types.ConfigMap, outDir string) (string, error)
}

// ArchiveInput carries everything the archiver persists for one run.
type ArchiveInput struct {
	ScenarioPath    string
	RunID           string
	ScenarioID      string
	ScenarioName    string
	WorkspaceID     string
	Config          types.ConfigMap
	StartedAt       time.Time
	ElapsedSeconds  float64
	StartYear       int
	EndYear         int
	EventsGenerated int64
	Seed            int64
	Status          types.RunStatus
}

// ArchiveRun persists run artifacts under <scenario>/runs/<run_id>/:
// the effective config, run metadata, a snapshot of the active engine
// database, and (when an exporter is configured and the engine produced
// data) a result spreadsheet, which is also mirrored into results/.
//
// The run is already terminal, so individual step failures are logged and
// do not fail the run. Returns the run directory.
func ArchiveRun(ctx context.Context, in ArchiveInput, exporter SpreadsheetExporter, logger *log.Logger) string {
	runDir := filepath.Join(in.ScenarioPath, "runs", in.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		logger.Warn("failed to create run directory", map[string]any{"error": err.Error()})
		return runDir
	}

	if data, err := yaml.Marshal(in.Config); err == nil {
		if err := iox.WriteFileAtomic(filepath.Join(runDir, "config.yaml"), data, 0o644); err != nil {
			logger.Warn("failed to save config snapshot", map[string]any{"error": err.Error()})
		}
	}

	meta := types.RunMetadata{
		RunID:           in.RunID,
		ScenarioID:      in.ScenarioID,
		ScenarioName:    in.ScenarioName,
		WorkspaceID:     in.WorkspaceID,
		StartedAt:       in.StartedAt,
		CompletedAt:     time.Now().UTC(),
		DurationSeconds: in.ElapsedSeconds,
		StartYear:       in.StartYear,
		EndYear:         in.EndYear,
		EventsGenerated: in.EventsGenerated,
		Seed:            in.Seed,
		Status:          in.Status,
	}
	if data, err := json.MarshalIndent(meta, "", "  "); err == nil {
		if err := iox.WriteFileAtomic(filepath.Join(runDir, "run_metadata.json"), data, 0o644); err != nil {
			logger.Warn("failed to save run metadata", map[string]any{"error": err.Error()})
		}
	}

	dbSrc := filepath.Join(in.ScenarioPath, "simulation.duckdb")
	if _, err := os.Stat(dbSrc); err == nil {
		if err := iox.CopyFile(dbSrc, filepath.Join(runDir, "simulation.duckdb")); err != nil {
			logger.Warn("failed to copy database snapshot", map[string]any{"error": err.Error()})
		}
	}

	if exporter != nil {
		if _, err := os.Stat(dbSrc); err == nil {
			path, err := exporter.Export(ctx, dbSrc, in.ScenarioName, in.Config, runDir)
			if err != nil {
				logger.Warn("spreadsheet export failed", map[string]any{"error": err.Error()})
			} else if path != "" {
				resultsDir := filepath.Join(in.ScenarioPath, "results")
				if err := os.MkdirAll(resultsDir, 0o755); err == nil {
					if err := iox.CopyFile(path, filepath.Join(resultsDir, filepath.Base(path))); err != nil {
						logger.Warn("failed to mirror spreadsheet to results", map[string]any{"error": err.Error()})
					}
				}
			}
		}
	}

	return runDir
}
