package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/planalign/config"
	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/log"
	"github.com/justapithecus/planalign/metrics"
	"github.com/justapithecus/planalign/store"
	"github.com/justapithecus/planalign/telemetry"
	"github.com/justapithecus/planalign/types"
)

// fakeEngine scripts the simulator: a fixed line sequence and exit code.
type fakeEngine struct {
	lines    chan string
	exitCode int

	mu         sync.Mutex
	terminated bool
	done       chan struct{}
	closeOnce  sync.Once
}

func newFakeEngine(lines []string, exitCode int) *fakeEngine {
	f := &fakeEngine{
		lines:    make(chan string, len(lines)+1),
		exitCode: exitCode,
		done:     make(chan struct{}),
	}
	for _, line := range lines {
		f.lines <- line
	}
	f.closeStream()
	return f
}

func (f *fakeEngine) closeStream() {
	f.closeOnce.Do(func() {
		close(f.lines)
		close(f.done)
	})
}

func (f *fakeEngine) Lines() <-chan string { return f.lines }

func (f *fakeEngine) Wait(ctx context.Context) (int, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return -1, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.terminated {
		return -1, nil
	}
	return f.exitCode, nil
}

func (f *fakeEngine) Terminate(time.Duration) {
	f.mu.Lock()
	f.terminated = true
	f.mu.Unlock()
	f.closeStream()
}

func (f *fakeEngine) wasTerminated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminated
}

type runFixture struct {
	store    *store.Store
	hub      *telemetry.Hub
	executor *Executor
	wsID     string
	scID     string
}

func newRunFixture(t *testing.T, spawn SpawnFunc) *runFixture {
	t.Helper()

	st := store.NewStore(t.TempDir(), store.WithLogger(log.Nop()))
	ws, err := st.CreateWorkspace(types.WorkspaceCreate{Name: "W"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	sc, err := st.CreateScenario(ws.ID, types.ScenarioCreate{Name: "S"})
	if err != nil {
		t.Fatal(err)
	}

	settings := config.Default()
	settings.WorkspacesRoot = st.Root()
	settings.Engine.TerminateGrace.Duration = 50 * time.Millisecond

	hub := telemetry.NewHub(100)
	executor := NewExecutor(st, hub, settings,
		WithSpawn(spawn),
		WithCollector(metrics.NewCollector()),
		WithLoggerFactory(func(log.RunContext) *log.Logger { return log.Nop() }),
	)

	return &runFixture{store: st, hub: hub, executor: executor, wsID: ws.ID, scID: sc.ID}
}

func singleYearConfig() types.ConfigMap {
	return types.ConfigMap{
		"simulation": map[string]any{"start_year": 2025, "end_year": 2025, "random_seed": 42},
		"workforce":  map[string]any{"total_termination_rate": 0.12},
	}
}

func drain(sub *telemetry.Subscription) []*types.TelemetrySnapshot {
	var out []*types.TelemetrySnapshot
	for {
		select {
		case snapshot, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, snapshot)
		default:
			return out
		}
	}
}

func TestExecute_SingleYearHappyPath(t *testing.T) {
	engine := newFakeEngine([]string{
		"Initializing setup",
		"Year: 2025",
		"HIRE: EMP_0001",
		"HIRE: EMP_0002",
		"450 events generated",
		"Completed reporting",
	}, 0)

	fx := newRunFixture(t, func(context.Context, LaunchSpec) (Engine, error) {
		return engine, nil
	})

	runID := "run-happy"
	sub := fx.hub.Subscribe(runID)
	defer fx.hub.Unsubscribe(runID, sub)

	if err := fx.executor.Execute(context.Background(), fx.wsID, fx.scID, runID, singleYearConfig(), false); err != nil {
		t.Fatalf("execute: %v", err)
	}

	run := fx.store.Runs().Get(runID)
	if run.Status != types.RunCompleted {
		t.Errorf("expected completed run, got %s", run.Status)
	}
	if run.Progress != 100 || run.CurrentStage != "COMPLETED" {
		t.Errorf("expected progress=100 stage=COMPLETED, got %d/%s", run.Progress, run.CurrentStage)
	}

	sc, _ := fx.store.GetScenario(fx.wsID, fx.scID)
	if sc.Status != types.ScenarioCompleted {
		t.Errorf("expected completed scenario, got %s", sc.Status)
	}
	if sc.LastRunID != runID {
		t.Errorf("expected last_run_id=%s, got %s", runID, sc.LastRunID)
	}

	snapshots := drain(sub)
	if len(snapshots) == 0 {
		t.Fatal("expected published snapshots")
	}
	last := snapshots[len(snapshots)-1]
	if last.Progress != 100 || last.CurrentStage != "COMPLETED" {
		t.Errorf("expected terminal snapshot 100/COMPLETED, got %d/%s", last.Progress, last.CurrentStage)
	}
	if last.EventsGenerated != 450 {
		t.Errorf("expected events_generated=450, got %d", last.EventsGenerated)
	}
	prev := -1
	for _, snapshot := range snapshots {
		if snapshot.Progress < prev {
			t.Errorf("progress regressed: %d after %d", snapshot.Progress, prev)
		}
		prev = snapshot.Progress
	}

	// Archived artifacts.
	runDir := filepath.Join(fx.store.ScenarioPath(fx.wsID, fx.scID), "runs", runID)
	metaRaw, err := os.ReadFile(filepath.Join(runDir, "run_metadata.json"))
	if err != nil {
		t.Fatalf("expected archived run metadata: %v", err)
	}
	var meta types.RunMetadata
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Status != types.RunCompleted || meta.EventsGenerated != 450 || meta.Seed != 42 {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if _, err := os.Stat(filepath.Join(runDir, "config.yaml")); err != nil {
		t.Errorf("expected archived config: %v", err)
	}

	// Telemetry journal replays the published stream.
	journalSnapshots, err := telemetry.ReadJournal(filepath.Join(runDir, telemetry.JournalName))
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(journalSnapshots) != len(snapshots) {
		t.Errorf("journal has %d snapshots, hub delivered %d", len(journalSnapshots), len(snapshots))
	}
}

func TestExecute_EngineFailureCarriesOutputContext(t *testing.T) {
	engine := newFakeEngine([]string{
		"Year: 2025",
		"Traceback (most recent call last):",
		"ValueError: bad config",
	}, 1)

	fx := newRunFixture(t, func(context.Context, LaunchSpec) (Engine, error) {
		return engine, nil
	})

	runID := "run-fail"
	sub := fx.hub.Subscribe(runID)
	defer fx.hub.Unsubscribe(runID, sub)

	err := fx.executor.Execute(context.Background(), fx.wsID, fx.scID, runID, singleYearConfig(), false)
	if !errors.Is(err, errs.ErrEngine) {
		t.Fatalf("expected engine error, got %v", err)
	}
	if !strings.Contains(err.Error(), "ValueError: bad config") {
		t.Errorf("expected last output lines in error, got %q", err)
	}

	run := fx.store.Runs().Get(runID)
	if run.Status != types.RunFailed || run.ErrorMessage == "" {
		t.Errorf("expected failed run with message, got %+v", run)
	}
	sc, _ := fx.store.GetScenario(fx.wsID, fx.scID)
	if sc.Status != types.ScenarioFailed {
		t.Errorf("expected failed scenario, got %s", sc.Status)
	}

	snapshots := drain(sub)
	if len(snapshots) == 0 {
		t.Fatal("expected snapshots")
	}
	if snapshots[len(snapshots)-1].CurrentStage != "FAILED" {
		t.Errorf("expected FAILED terminal frame, got %s", snapshots[len(snapshots)-1].CurrentStage)
	}
}

func TestExecute_SpawnFailure(t *testing.T) {
	fx := newRunFixture(t, func(context.Context, LaunchSpec) (Engine, error) {
		return nil, errs.New(errs.ErrLaunch, "spawn", "planalign", errors.New("executable not found"))
	})

	runID := "run-nolaunch"
	fx.hub.Subscribe(runID)

	err := fx.executor.Execute(context.Background(), fx.wsID, fx.scID, runID, singleYearConfig(), false)
	if !errors.Is(err, errs.ErrLaunch) {
		t.Fatalf("expected launch error, got %v", err)
	}
	if fx.store.Runs().Get(runID).Status != types.RunFailed {
		t.Error("expected failed run after spawn failure")
	}
}

func TestExecute_MissingCensusFailsFast(t *testing.T) {
	fx := newRunFixture(t, func(context.Context, LaunchSpec) (Engine, error) {
		t.Fatal("engine must not launch when the census is missing")
		return nil, nil
	})

	cfg := singleYearConfig()
	cfg["setup"] = map[string]any{"census_parquet_path": "/definitely/not/here.parquet"}

	runID := "run-nocensus"
	fx.hub.Subscribe(runID)

	err := fx.executor.Execute(context.Background(), fx.wsID, fx.scID, runID, cfg, false)
	if !errors.Is(err, errs.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}

// blockingEngine streams forever until terminated.
type blockingEngine struct {
	lines chan string
	done  chan struct{}
	once  sync.Once
}

func newBlockingEngine() *blockingEngine {
	b := &blockingEngine{lines: make(chan string, 16), done: make(chan struct{})}
	go func() {
		year := 2025
		for i := 0; ; i++ {
			select {
			case <-b.done:
				close(b.lines)
				return
			case b.lines <- "Year: " + itoa(year+i%3):
				time.Sleep(time.Millisecond)
			}
		}
	}()
	return b
}

func itoa(v int) string {
	return string([]byte{
		byte('0' + v/1000%10),
		byte('0' + v/100%10),
		byte('0' + v/10%10),
		byte('0' + v%10),
	})
}

func (b *blockingEngine) Lines() <-chan string { return b.lines }

func (b *blockingEngine) Wait(ctx context.Context) (int, error) {
	select {
	case <-b.done:
		return -1, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (b *blockingEngine) Terminate(time.Duration) {
	b.once.Do(func() { close(b.done) })
}

func TestExecute_CancellationTerminatesEngine(t *testing.T) {
	engine := newBlockingEngine()
	fx := newRunFixture(t, func(context.Context, LaunchSpec) (Engine, error) {
		return engine, nil
	})

	runID := "run-cancel"
	sub := fx.hub.Subscribe(runID)
	defer fx.hub.Unsubscribe(runID, sub)

	done := make(chan error, 1)
	go func() {
		done <- fx.executor.Execute(context.Background(), fx.wsID, fx.scID, runID, singleYearConfig(), false)
	}()

	// Wait until the run is streaming, then cancel.
	for fx.store.Runs().Get(runID) == nil || fx.store.Runs().Get(runID).Status != types.RunRunning {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	fx.executor.Cancel(runID)
	fx.executor.Cancel(runID) // idempotent

	select {
	case err := <-done:
		if !errors.Is(err, errs.ErrCancelled) {
			t.Fatalf("expected cancelled error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not observe cancellation")
	}

	run := fx.store.Runs().Get(runID)
	if run.Status != types.RunCancelled {
		t.Errorf("expected cancelled run, got %s", run.Status)
	}
	sc, _ := fx.store.GetScenario(fx.wsID, fx.scID)
	if sc.Status != types.ScenarioCancelled {
		t.Errorf("expected cancelled scenario, got %s", sc.Status)
	}
}
