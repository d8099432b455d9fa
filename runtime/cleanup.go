package runtime

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/justapithecus/planalign/log"
)

// CleanupYearsOutsideRange deletes rows whose simulation_year falls outside
// [startYear, endYear] from the known engine tables, so a scenario
// reconfigured to a different year range does not surface stale data.
//
// Best-effort: missing tables and per-table failures are skipped; the
// caller treats any returned error as non-fatal. Returns deleted row
// counts per table (only tables with deletions).
func CleanupYearsOutsideRange(ctx context.Context, driver, dbPath string, startYear, endYear int, tables []string, logger *log.Logger) (map[string]int64, error) {
	db, err := sqlx.Open(driver, dbPath)
	if err != nil {
		return map[string]int64{}, err
	}
	defer func() { _ = db.Close() }()

	return cleanupDB(ctx, db, startYear, endYear, tables, logger)
}

// cleanupDB is the deletion pass over an already-open handle.
func cleanupDB(ctx context.Context, db *sqlx.DB, startYear, endYear int, tables []string, logger *log.Logger) (map[string]int64, error) {
	deleted := make(map[string]int64)

	existing, err := existingTables(ctx, db)
	if err != nil {
		return deleted, err
	}

	for _, table := range tables {
		if !existing[table] {
			continue
		}
		if !tableHasYearColumn(ctx, db, table) {
			continue
		}

		res, err := db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE simulation_year < ? OR simulation_year > ?", table),
			startYear, endYear)
		if err != nil {
			logger.Warn("year-range cleanup failed for table", map[string]any{
				"table": table,
				"error": err.Error(),
			})
			continue
		}
		if rows, err := res.RowsAffected(); err == nil && rows > 0 {
			deleted[table] = rows
		}
	}

	if len(deleted) > 0 {
		logger.Info("cleaned stale simulation years", map[string]any{
			"start_year": startYear,
			"end_year":   endYear,
			"deleted":    deleted,
		})
	}

	return deleted, nil
}

func existingTables(ctx context.Context, db *sqlx.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT table_name FROM information_schema.tables")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		existing[name] = true
	}
	return existing, rows.Err()
}

func tableHasYearColumn(ctx context.Context, db *sqlx.DB, table string) bool {
	var count int
	err := db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM information_schema.columns WHERE table_name = ? AND column_name = 'simulation_year'",
		table)
	return err == nil && count > 0
}
