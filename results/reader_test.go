package results

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/log"
	"github.com/justapithecus/planalign/store"
	"github.com/justapithecus/planalign/types"
)

type readerFixture struct {
	reader *Reader
	mock   sqlmock.Sqlmock
	wsID   string
	scID   string
}

func newReaderFixture(t *testing.T) *readerFixture {
	t.Helper()

	st := store.NewStore(t.TempDir(), store.WithLogger(log.Nop()))
	ws, err := st.CreateWorkspace(types.WorkspaceCreate{
		Name: "W",
		BaseConfig: types.ConfigMap{
			"simulation": map[string]any{"start_year": 2025, "end_year": 2026},
		},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	sc, err := st.CreateScenario(ws.ID, types.ScenarioCreate{Name: "S"})
	if err != nil {
		t.Fatal(err)
	}

	// The resolver needs the scenario database file to exist.
	dbPath := st.ScenarioDatabasePath(ws.ID, sc.ID)
	if err := os.WriteFile(dbPath, []byte("duckdb"), 0o644); err != nil {
		t.Fatal(err)
	}

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = mockDB.Close() })

	reader := NewReader(st, NewResolver(st, ""), "duckdb",
		WithLogger(log.Nop()),
		WithOpen(func(_, _ string) (*sqlx.DB, error) {
			return sqlx.NewDb(mockDB, "sqlmock"), nil
		}),
	)

	return &readerFixture{reader: reader, mock: mock, wsID: ws.ID, scID: sc.ID}
}

func TestRead_AggregatesAndGrowthMetrics(t *testing.T) {
	fx := newReaderFixture(t)

	fx.mock.ExpectQuery(`(?s)SELECT.+FROM fct_workforce_snapshot.+GROUP BY simulation_year\s+ORDER BY simulation_year`).
		WithArgs(2025, 2026).
		WillReturnRows(sqlmock.NewRows([]string{
			"simulation_year", "headcount", "avg_compensation", "total_compensation", "active_avg_compensation",
		}).
			AddRow(2025, 100, 90000.0, 9000000.0, 90000.0).
			AddRow(2026, 110, 91000.0, 10010000.0, 91000.0))

	fx.mock.ExpectQuery(`(?s)SELECT.+detailed_status_code.+FROM fct_workforce_snapshot`).
		WithArgs(2025, 2026).
		WillReturnRows(sqlmock.NewRows([]string{
			"simulation_year", "employment_status", "employee_count", "avg_compensation",
		}).AddRow(2025, "continuous_active", 95, 90500.0))

	fx.mock.ExpectQuery(`(?s)SELECT event_type, simulation_year.+FROM fct_yearly_events`).
		WithArgs(2025, 2026).
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "simulation_year", "count"}).
			AddRow("HIRE", 2025, 20).
			AddRow("HIRE", 2026, 25).
			AddRow("TERMINATION", 2025, 12))

	fx.mock.ExpectQuery(`(?s)SELECT.+participating.+FROM fct_workforce_snapshot`).
		WithArgs(2026).
		WillReturnRows(sqlmock.NewRows([]string{"participating", "total_eligible"}).AddRow(88, 110))

	fx.mock.ExpectQuery(`(?s)SELECT.+participation_rate.+FROM fct_workforce_snapshot`).
		WithArgs(2025, 2026).
		WillReturnRows(sqlmock.NewRows([]string{
			"simulation_year", "participation_rate", "avg_deferral_rate", "total_employee_contributions",
			"total_employer_match", "total_employer_core", "total_employer_cost", "total_compensation", "participant_count",
		}).AddRow(2026, 80.0, 0.06, 500000.0, 150000.0, 100000.0, 250000.0, 10010000.0, 88))

	res, err := fx.reader.Read(context.Background(), fx.wsID, fx.scID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if res.FinalHeadcount != 110 {
		t.Errorf("expected final headcount 110, got %d", res.FinalHeadcount)
	}
	if math.Abs(res.TotalGrowthPct-10.0) > 1e-9 {
		t.Errorf("expected total growth 10%%, got %v", res.TotalGrowthPct)
	}
	// One year span: CAGR equals the growth rate.
	if math.Abs(res.CAGR-10.0) > 1e-6 {
		t.Errorf("expected CAGR 10%%, got %v", res.CAGR)
	}
	if math.Abs(res.ParticipationRate-0.8) > 1e-9 {
		t.Errorf("expected participation 0.8, got %v", res.ParticipationRate)
	}
	if len(res.EventTrends["HIRE"]) != 2 || res.EventTrends["HIRE"][1] != 25 {
		t.Errorf("unexpected event trends %v", res.EventTrends)
	}
	if len(res.DCPlanByYear) != 1 {
		t.Fatalf("expected one dc plan year, got %d", len(res.DCPlanByYear))
	}
	costRate := res.DCPlanByYear[0].EmployerCostRate
	if math.Abs(costRate-(250000.0/10010000.0*100)) > 1e-9 {
		t.Errorf("unexpected employer cost rate %v", costRate)
	}
	if res.DatabaseSource != string(SourceScenario) {
		t.Errorf("expected scenario source, got %s", res.DatabaseSource)
	}
	if len(res.CAGRMetrics) != 3 {
		t.Errorf("expected three CAGR metrics, got %d", len(res.CAGRMetrics))
	}
}

func TestRead_MissingTablesYieldEmptySections(t *testing.T) {
	fx := newReaderFixture(t)

	tableMissing := errors.New("Catalog Error: Table with name fct_workforce_snapshot does not exist")
	fx.mock.ExpectQuery(`(?s)SELECT.+FROM fct_workforce_snapshot`).WillReturnError(tableMissing)
	fx.mock.ExpectQuery(`(?s)SELECT.+detailed_status_code.+`).WillReturnError(tableMissing)
	fx.mock.ExpectQuery(`(?s)SELECT event_type.+`).WillReturnError(tableMissing)
	fx.mock.ExpectQuery(`(?s)SELECT.+participating.+`).WillReturnError(tableMissing)
	fx.mock.ExpectQuery(`(?s)SELECT.+participation_rate.+`).WillReturnError(tableMissing)

	res, err := fx.reader.Read(context.Background(), fx.wsID, fx.scID)
	if err != nil {
		t.Fatalf("missing tables must be tolerated: %v", err)
	}
	if len(res.WorkforceProgression) != 0 || len(res.DCPlanByYear) != 0 {
		t.Errorf("expected empty sections, got %+v", res)
	}
	if res.ParticipationRate != DefaultParticipationRate {
		t.Errorf("expected default participation rate, got %v", res.ParticipationRate)
	}
	if res.FinalHeadcount != 0 || res.CAGR != 0 {
		t.Errorf("all-null aggregates must coerce to zero, got %+v", res)
	}
}

func TestRead_AbsentDatabase(t *testing.T) {
	st := store.NewStore(t.TempDir(), store.WithLogger(log.Nop()))
	ws, _ := st.CreateWorkspace(types.WorkspaceCreate{Name: "Empty"}, nil)
	sc, _ := st.CreateScenario(ws.ID, types.ScenarioCreate{Name: "S"})

	reader := NewReader(st, NewResolver(st, ""), "duckdb", WithLogger(log.Nop()), WithOpen(
		func(_, _ string) (*sqlx.DB, error) { t.Fatal("must not open"); return nil, nil }))

	_, err := reader.Read(context.Background(), ws.ID, sc.ID)
	if !errors.Is(err, errs.ErrPrecondition) {
		t.Fatalf("expected precondition error for absent database, got %v", err)
	}
}

func TestCAGR_ZeroSafe(t *testing.T) {
	if got := CAGR(0, 100, 2); got != 0 {
		t.Errorf("zero start must yield 0, got %v", got)
	}
	if got := CAGR(100, 121, 0); got != 0 {
		t.Errorf("zero years must yield 0, got %v", got)
	}
	if got := CAGR(100, 121, 2); math.Abs(got-10.0) > 1e-9 {
		t.Errorf("expected 10%%, got %v", got)
	}
	if got := TotalGrowthPct(0, 50); got != 0 {
		t.Errorf("zero start growth must be 0, got %v", got)
	}
}

func TestResolver_FallbackChain(t *testing.T) {
	st := store.NewStore(t.TempDir(), store.WithLogger(log.Nop()))
	ws, _ := st.CreateWorkspace(types.WorkspaceCreate{Name: "W"}, nil)
	sc, _ := st.CreateScenario(ws.ID, types.ScenarioCreate{Name: "S"})

	projectDB := filepath.Join(t.TempDir(), "project.duckdb")
	resolver := NewResolver(st, projectDB)

	if got := resolver.Resolve(ws.ID, sc.ID); got.Source != SourceAbsent {
		t.Errorf("expected absent, got %s", got.Source)
	}

	if err := os.WriteFile(projectDB, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := resolver.Resolve(ws.ID, sc.ID); got.Source != SourceProject {
		t.Errorf("expected project fallback, got %s", got.Source)
	}

	wsDB := filepath.Join(st.WorkspacePath(ws.ID), "simulation.duckdb")
	if err := os.WriteFile(wsDB, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := resolver.Resolve(ws.ID, sc.ID); got.Source != SourceWorkspace {
		t.Errorf("expected workspace before project, got %s", got.Source)
	}

	scDB := st.ScenarioDatabasePath(ws.ID, sc.ID)
	if err := os.WriteFile(scDB, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := resolver.Resolve(ws.ID, sc.ID); got.Source != SourceScenario || got.Path != scDB {
		t.Errorf("expected scenario database first, got %+v", got)
	}
}
