package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/justapithecus/planalign/adapter"
	"github.com/justapithecus/planalign/config"
	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/iox"
	"github.com/justapithecus/planalign/log"
	"github.com/justapithecus/planalign/metrics"
	"github.com/justapithecus/planalign/seeds"
	"github.com/justapithecus/planalign/store"
	"github.com/justapithecus/planalign/telemetry"
	"github.com/justapithecus/planalign/types"
)

// maxOutputBuffer bounds the rolling stdout buffer kept for error context.
const maxOutputBuffer = 50

// subscriberGrace bounds how long a run waits for a first telemetry
// subscriber before streaming regardless.
const subscriberGrace = 5 * time.Second

// Executor runs simulations end-to-end: config prep, engine supervision,
// stdout parsing, telemetry broadcast, archival, and retention.
//
// All state updates for a single run happen in the executor's sequence;
// the hub preserves that order per subscriber. Across runs there is no
// ordering guarantee. Publishes never block.
type Executor struct {
	store     *store.Store
	hub       *telemetry.Hub
	settings  *config.Settings
	collector *metrics.Collector
	exporter  SpreadsheetExporter
	notifier  adapter.Adapter
	spawn     SpawnFunc
	newLogger func(log.RunContext) *log.Logger

	sem chan struct{}

	mu        sync.Mutex
	cancelled map[string]struct{}
	engines   map[string]Engine
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSpawn overrides engine creation (for tests).
func WithSpawn(spawn SpawnFunc) ExecutorOption {
	return func(e *Executor) { e.spawn = spawn }
}

// WithExporter sets the spreadsheet exporter collaborator.
func WithExporter(exporter SpreadsheetExporter) ExecutorOption {
	return func(e *Executor) { e.exporter = exporter }
}

// WithNotifier sets the run-completed push adapter.
func WithNotifier(notifier adapter.Adapter) ExecutorOption {
	return func(e *Executor) { e.notifier = notifier }
}

// WithCollector sets the metrics collector.
func WithCollector(collector *metrics.Collector) ExecutorOption {
	return func(e *Executor) { e.collector = collector }
}

// WithLoggerFactory overrides per-run logger construction (for tests).
func WithLoggerFactory(factory func(log.RunContext) *log.Logger) ExecutorOption {
	return func(e *Executor) { e.newLogger = factory }
}

// NewExecutor creates an executor over the given store and hub.
func NewExecutor(st *store.Store, hub *telemetry.Hub, settings *config.Settings, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:     st,
		hub:       hub,
		settings:  settings,
		spawn:     Spawn,
		newLogger: log.NewLogger,
		sem:       make(chan struct{}, settings.MaxConcurrentSimulations),
		cancelled: make(map[string]struct{}),
		engines:   make(map[string]Engine),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cancel requests termination of a run. Idempotent. A running engine is
// terminated at once; the executor also observes the flag on the next
// stdout line and terminates the engine there.
func (e *Executor) Cancel(runID string) {
	e.mu.Lock()
	e.cancelled[runID] = struct{}{}
	engine := e.engines[runID]
	e.mu.Unlock()

	if engine != nil {
		engine.Terminate(e.settings.Engine.TerminateGrace.Duration)
	}
}

func (e *Executor) isCancelled(runID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.cancelled[runID]
	return ok
}

// Execute runs one simulation to a terminal state. The run is created in
// the registry if the caller has not done so already. Returns the error
// recorded on the run; batch callers observe outcomes via scenario status
// instead.
func (e *Executor) Execute(ctx context.Context, workspaceID, scenarioID, runID string, cfg types.ConfigMap, resume bool) error {
	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	defer func() {
		e.mu.Lock()
		delete(e.cancelled, runID)
		delete(e.engines, runID)
		e.mu.Unlock()
	}()

	logger := e.newLogger(log.RunContext{WorkspaceID: workspaceID, ScenarioID: scenarioID, RunID: runID})

	startYear := cfgInt(cfg, 2025, "simulation", "start_year")
	endYear := cfgInt(cfg, 2027, "simulation", "end_year")
	if endYear < startYear {
		endYear = startYear
	}
	totalYears := endYear - startYear + 1

	if e.store.Runs().Get(runID) == nil {
		if _, err := e.store.Runs().Create(workspaceID, scenarioID, runID, startYear, totalYears); err != nil {
			return err
		}
	}

	e.collector.IncRunStarted()
	e.setRunStatus(runID, types.RunRunning)
	if _, err := e.store.UpdateScenarioStatus(workspaceID, scenarioID, types.ScenarioRunning, runID, nil); err != nil {
		return e.fail(ctx, logger, workspaceID, scenarioID, runID, startYear, endYear, totalYears, err)
	}

	logger.Info("simulation starting", map[string]any{
		"start_year": startYear,
		"end_year":   endYear,
		"resume":     resume,
	})

	// Precondition: input census must exist when configured.
	if census := cfgString(cfg, "", "setup", "census_parquet_path"); census != "" {
		if _, err := os.Stat(census); err != nil {
			err = errs.New(errs.ErrPrecondition, "execute", census, fmt.Errorf("census file not found"))
			return e.fail(ctx, logger, workspaceID, scenarioID, runID, startYear, endYear, totalYears, err)
		}
	} else {
		logger.Warn("no census_parquet_path in config, engine defaults apply", nil)
	}

	scenarioPath := e.store.ScenarioPath(workspaceID, scenarioID)
	configPath := filepath.Join(scenarioPath, "config.yaml")
	if err := writeConfigYAML(configPath, cfg); err != nil {
		return e.fail(ctx, logger, workspaceID, scenarioID, runID, startYear, endYear, totalYears, err)
	}

	// Seed CSVs: scenario-local, mirrored to the engine's global seeds
	// directory. Failures fall back to the engine's defaults.
	seedsDir := filepath.Join(scenarioPath, "seeds")
	if written, err := seeds.WriteAll(cfg, seedsDir); err != nil {
		logger.Warn("seed CSV write failed, engine defaults apply", map[string]any{"error": err.Error()})
	} else if anyWritten(written) && e.settings.Engine.SeedsDir != "" {
		if err := seeds.Mirror(seedsDir, e.settings.Engine.SeedsDir); err != nil {
			logger.Warn("seed mirror failed", map[string]any{"error": err.Error()})
		}
	}

	// Purge stale years from the active database before the engine opens it.
	dbPath := e.store.ScenarioDatabasePath(workspaceID, scenarioID)
	if _, err := os.Stat(dbPath); err == nil {
		if _, err := CleanupYearsOutsideRange(ctx, e.settings.Engine.DatabaseDriver, dbPath,
			startYear, endYear, e.settings.Engine.CleanupTables, logger); err != nil {
			logger.Warn("year-range cleanup failed", map[string]any{"error": err.Error()})
		}
	}

	// Telemetry journal rides in the run directory from the start.
	runDir := filepath.Join(scenarioPath, "runs", runID)
	var journal *telemetry.JournalWriter
	if err := os.MkdirAll(runDir, 0o755); err == nil {
		if jw, err := telemetry.OpenJournal(filepath.Join(runDir, telemetry.JournalName)); err == nil {
			journal = jw
		}
	}
	if journal != nil {
		defer iox.DiscardClose(journal)
	}

	e.waitForSubscriber(ctx, runID, logger)

	startTime := time.Now()
	e.publish(runID, journal, &types.TelemetrySnapshot{
		RunID:        runID,
		Progress:     1,
		CurrentStage: "INITIALIZATION",
		CurrentYear:  startYear,
		TotalYears:   totalYears,
		RecentEvents: []types.RecentEvent{{
			EventType:  "INFO",
			EmployeeID: "System",
			Timestamp:  time.Now().UTC(),
			Details:    fmt.Sprintf("Simulation started for years %d-%d", startYear, endYear),
		}},
		MemoryPressure: types.PressureLow,
		Timestamp:      time.Now().UTC(),
	})

	spec := BuildLaunchSpec(e.settings.Engine, configPath, dbPath, startYear, endYear)
	logger.Info("launching engine", map[string]any{"command": spec.Command, "args": spec.Args})

	engine, err := e.spawn(ctx, spec)
	if err != nil {
		e.collector.IncEngineLaunchFailure()
		return e.fail(ctx, logger, workspaceID, scenarioID, runID, startYear, endYear, totalYears, err)
	}
	e.collector.IncEngineLaunchSuccess()

	e.mu.Lock()
	e.engines[runID] = engine
	e.mu.Unlock()

	parser := NewOutputParser(startYear, totalYears)
	outputBuffer := make([]string, 0, maxOutputBuffer)
	cancelled := false

	for line := range engine.Lines() {
		if e.isCancelled(runID) {
			cancelled = true
			engine.Terminate(e.settings.Engine.TerminateGrace.Duration)
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		outputBuffer = append(outputBuffer, line)
		if len(outputBuffer) > maxOutputBuffer {
			outputBuffer = outputBuffer[1:]
		}

		switch ClassifyLine(line) {
		case "error":
			logger.Error("engine: "+line, nil)
		case "warning":
			logger.Warn("engine: "+line, nil)
		default:
			logger.Debug("engine: "+line, nil)
		}

		parser.ParseLine(line)
		progress := parser.Progress()
		stage := parser.CurrentStage()
		year := parser.CurrentYear()
		if year < startYear {
			year = startYear
		} else if year > endYear {
			year = endYear
		}

		_, _ = e.store.Runs().Update(runID, store.RunUpdate{
			Progress:     &progress,
			CurrentStage: &stage,
			CurrentYear:  &year,
		})

		elapsed := time.Since(startTime).Seconds()
		e.publish(runID, journal, e.snapshot(runID, parser, progress, totalYears, elapsed))
	}

	if !cancelled && e.isCancelled(runID) {
		cancelled = true
	}

	exitCode, waitErr := engine.Wait(ctx)
	elapsed := time.Since(startTime).Seconds()

	switch {
	case cancelled:
		logger.Info("simulation cancelled", map[string]any{"elapsed_seconds": elapsed})
		e.collector.IncRunCancelled()
		e.setRunStatus(runID, types.RunCancelled)
		_, _ = e.store.UpdateScenarioStatus(workspaceID, scenarioID, types.ScenarioCancelled, runID, nil)
		e.finish(ctx, logger, workspaceID, scenarioID, runID, cfg, startTime, elapsed, startYear, endYear, parser, types.RunCancelled)
		return errs.New(errs.ErrCancelled, "execute", runID, nil)

	case waitErr != nil || exitCode != 0:
		err := engineError(exitCode, waitErr, outputBuffer)
		logger.Error("engine failed", map[string]any{"exit_code": exitCode, "error": err.Error()})
		e.publishTerminal(runID, journal, parser, "FAILED", totalYears, endYear, elapsed, 0)
		return e.failTerminal(ctx, logger, workspaceID, scenarioID, runID, cfg, startTime, elapsed, startYear, endYear, parser, err)

	default:
		progress := 100
		stage := "COMPLETED"
		completed := types.RunCompleted
		_, _ = e.store.Runs().Update(runID, store.RunUpdate{
			Status:       &completed,
			Progress:     &progress,
			CurrentStage: &stage,
		})
		_, _ = e.store.UpdateScenarioStatus(workspaceID, scenarioID, types.ScenarioCompleted, runID, nil)

		e.publishTerminal(runID, journal, parser, "COMPLETED", totalYears, endYear, elapsed, 100)
		e.collector.IncRunCompleted()

		logger.Info("simulation completed", map[string]any{
			"elapsed_seconds": elapsed,
			"events":          parser.EventsGenerated(),
		})

		e.finish(ctx, logger, workspaceID, scenarioID, runID, cfg, startTime, elapsed, startYear, endYear, parser, types.RunCompleted)
		return nil
	}
}

// snapshot assembles a telemetry snapshot from the current parser state.
func (e *Executor) snapshot(runID string, parser *OutputParser, progress, totalYears int, elapsed float64) *types.TelemetrySnapshot {
	memMB := processMemoryMB()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(parser.EventsGenerated()) / elapsed
	}
	return &types.TelemetrySnapshot{
		RunID:           runID,
		Progress:        progress,
		CurrentStage:    parser.CurrentStage(),
		CurrentYear:     parser.CurrentYear(),
		TotalYears:      totalYears,
		MemoryMB:        memMB,
		MemoryPressure:  types.PressureForMemory(memMB),
		EventsGenerated: parser.EventsGenerated(),
		ElapsedSeconds:  elapsed,
		EventsPerSecond: rate,
		RecentEvents:    parser.RecentEvents(),
		Timestamp:       time.Now().UTC(),
	}
}

func (e *Executor) publishTerminal(runID string, journal *telemetry.JournalWriter, parser *OutputParser, stage string, totalYears, endYear int, elapsed float64, progress int) {
	snap := e.snapshot(runID, parser, progress, totalYears, elapsed)
	snap.CurrentStage = stage
	if stage == "COMPLETED" {
		snap.CurrentYear = endYear
	}
	e.publish(runID, journal, snap)
}

// publish offers the snapshot to the hub (never blocks) and appends it to
// the run's telemetry journal.
func (e *Executor) publish(runID string, journal *telemetry.JournalWriter, snap *types.TelemetrySnapshot) {
	e.hub.Publish(runID, snap)
	if journal != nil {
		_ = journal.Append(snap)
	}
}

// finish archives artifacts, applies retention, notifies the adapter, and
// absorbs hub stats. Failures here are logged and discarded: the run is
// already terminal.
func (e *Executor) finish(ctx context.Context, logger *log.Logger, workspaceID, scenarioID, runID string, cfg types.ConfigMap, startTime time.Time, elapsed float64, startYear, endYear int, parser *OutputParser, status types.RunStatus) {
	scenarioName := scenarioID
	if sc, err := e.store.GetScenario(workspaceID, scenarioID); err == nil && sc != nil {
		scenarioName = sc.Name
	}

	ArchiveRun(ctx, ArchiveInput{
		ScenarioPath:    e.store.ScenarioPath(workspaceID, scenarioID),
		RunID:           runID,
		ScenarioID:      scenarioID,
		ScenarioName:    scenarioName,
		WorkspaceID:     workspaceID,
		Config:          cfg,
		StartedAt:       startTime.UTC(),
		ElapsedSeconds:  elapsed,
		StartYear:       startYear,
		EndYear:         endYear,
		EventsGenerated: parser.EventsGenerated(),
		Seed:            int64(cfgInt(cfg, 42, "simulation", "random_seed")),
		Status:          status,
	}, e.exporter, logger)

	maxRuns := cfgInt(cfg, e.settings.MaxRunsPerScenario, "storage", "max_runs_per_scenario")
	if result, err := e.store.CleanupOldRuns(workspaceID, scenarioID, maxRuns); err != nil {
		logger.Warn("run retention cleanup failed", map[string]any{"error": err.Error()})
	} else if result.RemovedCount > 0 {
		e.collector.AddPruned(result.RemovedCount, result.BytesFreed)
	}

	if e.notifier != nil {
		event := &adapter.RunCompletedEvent{
			RunID:           runID,
			WorkspaceID:     workspaceID,
			ScenarioID:      scenarioID,
			ScenarioName:    scenarioName,
			Status:          string(status),
			StartYear:       startYear,
			EndYear:         endYear,
			EventsGenerated: parser.EventsGenerated(),
			DurationMs:      int64(elapsed * 1000),
			Timestamp:       time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.notifier.Publish(ctx, event); err != nil {
			logger.Warn("run-completed publish failed", map[string]any{"error": err.Error()})
		}
	}

	published, dropped := e.hub.Stats(runID)
	e.collector.AbsorbHubStats(published, dropped)
}

// fail marks a run failed before the engine produced any output.
func (e *Executor) fail(ctx context.Context, logger *log.Logger, workspaceID, scenarioID, runID string, startYear, endYear, totalYears int, err error) error {
	logger.Error("simulation failed", map[string]any{"error": err.Error()})

	msg := err.Error()
	failed := types.RunFailed
	_, _ = e.store.Runs().Update(runID, store.RunUpdate{Status: &failed, ErrorMessage: &msg})
	_, _ = e.store.UpdateScenarioStatus(workspaceID, scenarioID, types.ScenarioFailed, runID, nil)
	e.collector.IncRunFailed()

	e.hub.Publish(runID, &types.TelemetrySnapshot{
		RunID:          runID,
		CurrentStage:   "FAILED",
		CurrentYear:    startYear,
		TotalYears:     totalYears,
		MemoryPressure: types.PressureLow,
		Timestamp:      time.Now().UTC(),
	})
	return err
}

// failTerminal marks a run failed after the engine ran, then archives.
func (e *Executor) failTerminal(ctx context.Context, logger *log.Logger, workspaceID, scenarioID, runID string, cfg types.ConfigMap, startTime time.Time, elapsed float64, startYear, endYear int, parser *OutputParser, err error) error {
	msg := err.Error()
	failed := types.RunFailed
	_, _ = e.store.Runs().Update(runID, store.RunUpdate{Status: &failed, ErrorMessage: &msg})
	_, _ = e.store.UpdateScenarioStatus(workspaceID, scenarioID, types.ScenarioFailed, runID, nil)
	e.collector.IncRunFailed()

	e.finish(ctx, logger, workspaceID, scenarioID, runID, cfg, startTime, elapsed, startYear, endYear, parser, types.RunFailed)
	return err
}

func (e *Executor) setRunStatus(runID string, status types.RunStatus) {
	_, _ = e.store.Runs().Update(runID, store.RunUpdate{Status: &status})
}

// waitForSubscriber waits up to the grace window for a first telemetry
// subscriber, but never depends on one being present.
func (e *Executor) waitForSubscriber(ctx context.Context, runID string, logger *log.Logger) {
	deadline := time.Now().Add(subscriberGrace)
	for time.Now().Before(deadline) {
		if e.hub.SubscriberCount(runID) > 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	logger.Warn("no telemetry subscriber connected, proceeding", map[string]any{
		"waited": subscriberGrace.String(),
	})
}

// engineError builds the terminal error for a non-zero exit, carrying the
// last output lines as context.
func engineError(exitCode int, waitErr error, outputBuffer []string) error {
	tail := outputBuffer
	if len(tail) > 10 {
		tail = tail[len(tail)-10:]
	}
	context := strings.Join(tail, "\n")
	if waitErr != nil {
		return errs.New(errs.ErrEngine, "execute", "", fmt.Errorf("engine wait failed: %w", waitErr))
	}
	return errs.New(errs.ErrEngine, "execute", "",
		fmt.Errorf("engine exited with code %d. Last output:\n%s", exitCode, context))
}

func writeConfigYAML(path string, cfg types.ConfigMap) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errs.IO("write_config", path, err)
	}
	if err := iox.WriteFileAtomic(path, data, 0o644); err != nil {
		return errs.IO("write_config", path, err)
	}
	return nil
}

func anyWritten(written map[string]bool) bool {
	for _, ok := range written {
		if ok {
			return true
		}
	}
	return false
}

// processMemoryMB reports this process's memory in MB. The engine runs out
// of process, so this tracks the control plane's own footprint.
func processMemoryMB() float64 {
	var stats goruntime.MemStats
	goruntime.ReadMemStats(&stats)
	return float64(stats.Sys) / (1024 * 1024)
}

// cfgInt walks a nested config path and coerces the leaf to int.
func cfgInt(cfg types.ConfigMap, fallback int, path ...string) int {
	if raw, ok := cfgValue(cfg, path...); ok {
		switch v := raw.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return fallback
}

// cfgString walks a nested config path and coerces the leaf to string.
func cfgString(cfg types.ConfigMap, fallback string, path ...string) string {
	if raw, ok := cfgValue(cfg, path...); ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return fallback
}

func cfgValue(cfg types.ConfigMap, path ...string) (any, bool) {
	current := any(cfg)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
