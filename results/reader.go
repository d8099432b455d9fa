package results

import (
	"context"
	"math"

	"github.com/jmoiron/sqlx"

	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/log"
	"github.com/justapithecus/planalign/store"
	"github.com/justapithecus/planalign/types"
)

// DefaultParticipationRate is reported when the rate cannot be computed.
const DefaultParticipationRate = 0.85

// OpenFunc opens a database handle. Injectable for tests.
type OpenFunc func(driver, dsn string) (*sqlx.DB, error)

// Reader answers result aggregation queries against a scenario's database,
// opened read-only.
type Reader struct {
	store    *store.Store
	resolver *Resolver
	driver   string
	logger   *log.Logger
	open     OpenFunc
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithOpen overrides database opening (for tests).
func WithOpen(open OpenFunc) ReaderOption {
	return func(r *Reader) { r.open = open }
}

// WithLogger sets the reader logger.
func WithLogger(l *log.Logger) ReaderOption {
	return func(r *Reader) { r.logger = l }
}

// NewReader creates a reader using the given driver name for the engine's
// database files.
func NewReader(st *store.Store, resolver *Resolver, driver string, opts ...ReaderOption) *Reader {
	r := &Reader{
		store:    st,
		resolver: resolver,
		driver:   driver,
		logger:   log.NewLogger(log.RunContext{}),
		open:     sqlx.Open,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// openResolved opens the scenario's database read-only, following the
// resolver's fallback chain.
func (r *Reader) openResolved(workspaceID, scenarioID string) (*sqlx.DB, DatabaseSource, error) {
	resolved := r.resolver.Resolve(workspaceID, scenarioID)
	if !resolved.Exists {
		return nil, SourceAbsent, errs.New(errs.ErrPrecondition, "read_results", scenarioID, nil)
	}
	if resolved.Source == SourceProject {
		r.logger.Warn("using shared project database, results may include other scenarios", map[string]any{
			"scenario_id": scenarioID,
		})
	}

	db, err := r.open(r.driver, resolved.Path+"?access_mode=read_only")
	if err != nil {
		return nil, resolved.Source, errs.IO("read_results", resolved.Path, err)
	}
	return db, resolved.Source, nil
}

// yearRange reads [start_year, end_year] from the scenario's merged config.
func (r *Reader) yearRange(workspaceID, scenarioID string) (int, int) {
	startYear, endYear := 2025, 2027
	cfg, err := r.store.MergedConfig(workspaceID, scenarioID)
	if err != nil || cfg == nil {
		return startYear, endYear
	}
	if sim, ok := cfg["simulation"].(map[string]any); ok {
		if v, ok := asInt(sim["start_year"]); ok {
			startYear = v
		}
		if v, ok := asInt(sim["end_year"]); ok {
			endYear = v
		}
	}
	return startYear, endYear
}

// Read aggregates the scenario's result database: workforce progression,
// compensation by status, event trends, final-year participation, DC plan
// aggregates, and derived growth metrics. Missing tables yield empty
// sections rather than errors.
func (r *Reader) Read(ctx context.Context, workspaceID, scenarioID string) (*types.SimulationResults, error) {
	startYear, endYear := r.yearRange(workspaceID, scenarioID)

	db, source, err := r.openResolved(workspaceID, scenarioID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	progression := r.queryWorkforceProgression(ctx, db, startYear, endYear)
	compByStatus := r.queryCompensationByStatus(ctx, db, startYear, endYear)
	eventTrends := r.queryEventTrends(ctx, db, startYear, endYear)
	participation := r.queryParticipationRate(ctx, db, endYear)
	dcPlan := r.queryDCPlan(ctx, db, startYear, endYear)

	results := &types.SimulationResults{
		ScenarioID:           scenarioID,
		StartYear:            startYear,
		EndYear:              endYear,
		ParticipationRate:    participation,
		WorkforceProgression: progression,
		EventTrends:          eventTrends,
		CompensationByStatus: compByStatus,
		DCPlanByYear:         dcPlan,
		DatabaseSource:       string(source),
	}

	if len(progression) > 0 {
		first, last := progression[0], progression[len(progression)-1]
		years := last.SimulationYear - first.SimulationYear
		results.StartYear = first.SimulationYear
		results.EndYear = last.SimulationYear
		results.FinalHeadcount = last.Headcount
		results.TotalGrowthPct = TotalGrowthPct(float64(first.Headcount), float64(last.Headcount))
		results.CAGR = CAGR(float64(first.Headcount), float64(last.Headcount), years)
		results.CAGRMetrics = []types.CAGRMetric{
			{
				Metric:     "Total Headcount",
				StartValue: float64(first.Headcount),
				EndValue:   float64(last.Headcount),
				Years:      years,
				CAGRPct:    round2(CAGR(float64(first.Headcount), float64(last.Headcount), years)),
			},
			{
				Metric:     "Total Compensation",
				StartValue: round2(first.TotalCompensation),
				EndValue:   round2(last.TotalCompensation),
				Years:      years,
				CAGRPct:    round2(CAGR(first.TotalCompensation, last.TotalCompensation, years)),
			},
			{
				Metric:     "Average Compensation",
				StartValue: round2(first.ActiveAvgCompensation),
				EndValue:   round2(last.ActiveAvgCompensation),
				Years:      years,
				CAGRPct:    round2(CAGR(first.ActiveAvgCompensation, last.ActiveAvgCompensation, years)),
			},
		}
	}

	return results, nil
}

func (r *Reader) queryWorkforceProgression(ctx context.Context, db *sqlx.DB, startYear, endYear int) []types.WorkforceYear {
	rows, err := db.QueryContext(ctx, `
		SELECT
			simulation_year,
			COUNT(DISTINCT CASE WHEN LOWER(employment_status) = 'active' THEN employee_id END) AS headcount,
			COALESCE(AVG(prorated_annual_compensation), 0) AS avg_compensation,
			COALESCE(SUM(CASE WHEN LOWER(employment_status) = 'active' THEN prorated_annual_compensation ELSE 0 END), 0) AS total_compensation,
			COALESCE(AVG(CASE WHEN LOWER(employment_status) = 'active' THEN prorated_annual_compensation END), 0) AS active_avg_compensation
		FROM fct_workforce_snapshot
		WHERE simulation_year >= ? AND simulation_year <= ?
		GROUP BY simulation_year
		ORDER BY simulation_year`, startYear, endYear)
	if err != nil {
		r.logger.Warn("workforce progression query failed", map[string]any{"error": err.Error()})
		return nil
	}
	defer func() { _ = rows.Close() }()

	var out []types.WorkforceYear
	for rows.Next() {
		var row types.WorkforceYear
		if err := rows.Scan(&row.SimulationYear, &row.Headcount, &row.AvgCompensation, &row.TotalCompensation, &row.ActiveAvgCompensation); err != nil {
			return out
		}
		out = append(out, row)
	}
	return out
}

func (r *Reader) queryCompensationByStatus(ctx context.Context, db *sqlx.DB, startYear, endYear int) []types.CompensationByStatus {
	rows, err := db.QueryContext(ctx, `
		SELECT
			simulation_year,
			detailed_status_code AS employment_status,
			COUNT(DISTINCT employee_id) AS employee_count,
			COALESCE(AVG(prorated_annual_compensation), 0) AS avg_compensation
		FROM fct_workforce_snapshot
		WHERE simulation_year >= ? AND simulation_year <= ?
		GROUP BY simulation_year, detailed_status_code
		ORDER BY simulation_year, detailed_status_code`, startYear, endYear)
	if err != nil {
		r.logger.Warn("compensation by status query failed", map[string]any{"error": err.Error()})
		return nil
	}
	defer func() { _ = rows.Close() }()

	var out []types.CompensationByStatus
	for rows.Next() {
		var row types.CompensationByStatus
		if err := rows.Scan(&row.SimulationYear, &row.EmploymentStatus, &row.EmployeeCount, &row.AvgCompensation); err != nil {
			return out
		}
		out = append(out, row)
	}
	return out
}

func (r *Reader) queryEventTrends(ctx context.Context, db *sqlx.DB, startYear, endYear int) map[string][]int64 {
	trends := make(map[string][]int64)
	rows, err := db.QueryContext(ctx, `
		SELECT event_type, simulation_year, COUNT(*) AS count
		FROM fct_yearly_events
		WHERE simulation_year >= ? AND simulation_year <= ?
		GROUP BY event_type, simulation_year
		ORDER BY event_type, simulation_year`, startYear, endYear)
	if err != nil {
		r.logger.Warn("event trends query failed", map[string]any{"error": err.Error()})
		return trends
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var eventType string
		var year int
		var count int64
		if err := rows.Scan(&eventType, &year, &count); err != nil {
			return trends
		}
		trends[eventType] = append(trends[eventType], count)
	}
	return trends
}

func (r *Reader) queryParticipationRate(ctx context.Context, db *sqlx.DB, endYear int) float64 {
	row := db.QueryRowContext(ctx, `
		SELECT
			COUNT(DISTINCT CASE WHEN is_enrolled_flag THEN employee_id END) AS participating,
			COUNT(DISTINCT employee_id) AS total_eligible
		FROM fct_workforce_snapshot
		WHERE simulation_year = ?`, endYear)

	var participating, totalEligible int64
	if err := row.Scan(&participating, &totalEligible); err != nil {
		r.logger.Warn("participation rate query failed, using default", map[string]any{"error": err.Error()})
		return DefaultParticipationRate
	}
	if totalEligible == 0 {
		return DefaultParticipationRate
	}
	return float64(participating) / float64(totalEligible)
}

func (r *Reader) queryDCPlan(ctx context.Context, db *sqlx.DB, startYear, endYear int) []types.DCPlanYear {
	rows, err := db.QueryContext(ctx, `
		SELECT
			simulation_year,
			COALESCE(
				COUNT(CASE WHEN UPPER(employment_status) = 'ACTIVE' AND is_enrolled_flag THEN 1 END) * 100.0
				/ NULLIF(COUNT(CASE WHEN UPPER(employment_status) = 'ACTIVE' THEN 1 END), 0),
				0
			) AS participation_rate,
			COALESCE(AVG(CASE WHEN is_enrolled_flag THEN current_deferral_rate END), 0) AS avg_deferral_rate,
			COALESCE(SUM(prorated_annual_contributions), 0) AS total_employee_contributions,
			COALESCE(SUM(employer_match_amount), 0) AS total_employer_match,
			COALESCE(SUM(employer_core_amount), 0) AS total_employer_core,
			COALESCE(SUM(employer_match_amount) + SUM(employer_core_amount), 0) AS total_employer_cost,
			COALESCE(SUM(prorated_annual_compensation), 0) AS total_compensation,
			COUNT(CASE WHEN is_enrolled_flag THEN 1 END) AS participant_count
		FROM fct_workforce_snapshot
		WHERE simulation_year >= ? AND simulation_year <= ?
		GROUP BY simulation_year
		ORDER BY simulation_year`, startYear, endYear)
	if err != nil {
		r.logger.Warn("dc plan query failed", map[string]any{"error": err.Error()})
		return nil
	}
	defer func() { _ = rows.Close() }()

	var out []types.DCPlanYear
	for rows.Next() {
		var row types.DCPlanYear
		if err := rows.Scan(&row.SimulationYear, &row.ParticipationRate, &row.AvgDeferralRate,
			&row.TotalEmployeeContributions, &row.TotalEmployerMatch, &row.TotalEmployerCore,
			&row.TotalEmployerCost, &row.TotalCompensation, &row.ParticipantCount); err != nil {
			return out
		}
		if row.TotalCompensation > 0 {
			row.EmployerCostRate = row.TotalEmployerCost / row.TotalCompensation * 100
		}
		if math.IsNaN(row.AvgDeferralRate) {
			row.AvgDeferralRate = 0
		}
		out = append(out, row)
	}
	return out
}

// CAGR returns compound annual growth in percent, zero-safe: non-positive
// start values or year spans yield 0.
func CAGR(startValue, endValue float64, years int) float64 {
	if startValue <= 0 || years <= 0 {
		return 0
	}
	return (math.Pow(endValue/startValue, 1/float64(years)) - 1) * 100
}

// TotalGrowthPct returns linear growth in percent, zero-safe.
func TotalGrowthPct(startValue, endValue float64) float64 {
	if startValue <= 0 {
		return 0
	}
	return (endValue - startValue) / startValue * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func asInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
