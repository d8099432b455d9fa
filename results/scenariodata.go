package results

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/justapithecus/planalign/types"
)

// WorkforceRow is one year of workforce counts for comparison purposes.
type WorkforceRow struct {
	Year       int
	Headcount  int64
	Active     int64
	Terminated int64
}

// EventRow is one (year, event type) count.
type EventRow struct {
	Year      int
	EventType string
	Count     int64
}

// ScenarioData is the raw per-scenario material the comparison engine
// combines: workforce counts, event counts, hires, and DC plan aggregates.
type ScenarioData struct {
	Workforce   []WorkforceRow
	Events      []EventRow
	HiresByYear map[int]int64
	DCPlan      []types.DCPlanYear
}

// LoadScenarioData reads the comparison slices for one scenario. Missing
// tables yield empty sections.
func (r *Reader) LoadScenarioData(ctx context.Context, workspaceID, scenarioID string) (*ScenarioData, error) {
	db, _, err := r.openResolved(workspaceID, scenarioID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	data := &ScenarioData{HiresByYear: make(map[int]int64)}

	data.Workforce = r.queryWorkforceCounts(ctx, db)
	data.Events = r.queryEventCounts(ctx, db)
	for _, ev := range data.Events {
		if ev.EventType == "HIRE" {
			data.HiresByYear[ev.Year] = ev.Count
		}
	}
	data.DCPlan = r.queryDCPlan(ctx, db, 0, 9999)

	return data, nil
}

func (r *Reader) queryWorkforceCounts(ctx context.Context, db *sqlx.DB) []WorkforceRow {
	rows, err := db.QueryContext(ctx, `
		SELECT
			simulation_year,
			COUNT(DISTINCT employee_id) AS headcount,
			COUNT(DISTINCT CASE WHEN UPPER(employment_status) = 'ACTIVE' THEN employee_id END) AS active,
			COUNT(DISTINCT CASE WHEN UPPER(employment_status) = 'TERMINATED' THEN employee_id END) AS terminated
		FROM fct_workforce_snapshot
		GROUP BY simulation_year
		ORDER BY simulation_year`)
	if err != nil {
		r.logger.Warn("workforce counts query failed", map[string]any{"error": err.Error()})
		return nil
	}
	defer func() { _ = rows.Close() }()

	var out []WorkforceRow
	for rows.Next() {
		var row WorkforceRow
		if err := rows.Scan(&row.Year, &row.Headcount, &row.Active, &row.Terminated); err != nil {
			return out
		}
		out = append(out, row)
	}
	return out
}

func (r *Reader) queryEventCounts(ctx context.Context, db *sqlx.DB) []EventRow {
	rows, err := db.QueryContext(ctx, `
		SELECT simulation_year, event_type, COUNT(*) AS count
		FROM fct_yearly_events
		GROUP BY simulation_year, event_type
		ORDER BY simulation_year, event_type`)
	if err != nil {
		r.logger.Warn("event counts query failed", map[string]any{"error": err.Error()})
		return nil
	}
	defer func() { _ = rows.Close() }()

	var out []EventRow
	for rows.Next() {
		var row EventRow
		if err := rows.Scan(&row.Year, &row.EventType, &row.Count); err != nil {
			return out
		}
		out = append(out, row)
	}
	return out
}
