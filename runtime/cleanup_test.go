package runtime

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/justapithecus/planalign/log"
)

func TestCleanupDB_DeletesStaleRows(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = mockDB.Close() }()

	mock.ExpectQuery(`SELECT table_name FROM information_schema.tables`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
			AddRow("fct_workforce_snapshot").
			AddRow("fct_yearly_events"))

	// fct_workforce_snapshot: has the year column, two stale rows deleted.
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM information_schema.columns`).
		WithArgs("fct_workforce_snapshot").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(`DELETE FROM fct_workforce_snapshot WHERE simulation_year < \? OR simulation_year > \?`).
		WithArgs(2025, 2026).
		WillReturnResult(sqlmock.NewResult(0, 2))

	// fct_yearly_events: nothing stale.
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM information_schema.columns`).
		WithArgs("fct_yearly_events").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(`DELETE FROM fct_yearly_events .+`).
		WithArgs(2025, 2026).
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := cleanupDB(context.Background(), sqlx.NewDb(mockDB, "sqlmock"), 2025, 2026,
		[]string{"fct_workforce_snapshot", "fct_yearly_events", "int_baseline_workforce"}, log.Nop())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	if deleted["fct_workforce_snapshot"] != 2 {
		t.Errorf("expected 2 deletions recorded, got %v", deleted)
	}
	if _, ok := deleted["fct_yearly_events"]; ok {
		t.Error("zero-deletion tables must not be reported")
	}
	if _, ok := deleted["int_baseline_workforce"]; ok {
		t.Error("missing tables must be skipped")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCleanupDB_TableWithoutYearColumnSkipped(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = mockDB.Close() }()

	mock.ExpectQuery(`SELECT table_name FROM information_schema.tables`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("dim_levels"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM information_schema.columns`).
		WithArgs("dim_levels").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	deleted, err := cleanupDB(context.Background(), sqlx.NewDb(mockDB, "sqlmock"), 2025, 2026,
		[]string{"dim_levels"}, log.Nop())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(deleted) != 0 {
		t.Errorf("expected no deletions, got %v", deleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
