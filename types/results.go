package types

// WorkforceYear is one year of workforce progression.
type WorkforceYear struct {
	SimulationYear        int     `json:"simulation_year" db:"simulation_year"`
	Headcount             int64   `json:"headcount" db:"headcount"`
	AvgCompensation       float64 `json:"avg_compensation" db:"avg_compensation"`
	TotalCompensation     float64 `json:"total_compensation" db:"total_compensation"`
	ActiveAvgCompensation float64 `json:"active_avg_compensation" db:"active_avg_compensation"`
}

// CompensationByStatus is headcount/average pay per (year, status code).
type CompensationByStatus struct {
	SimulationYear   int     `json:"simulation_year" db:"simulation_year"`
	EmploymentStatus string  `json:"employment_status" db:"employment_status"`
	EmployeeCount    int64   `json:"employee_count" db:"employee_count"`
	AvgCompensation  float64 `json:"avg_compensation" db:"avg_compensation"`
}

// DCPlanYear is the per-year defined-contribution plan aggregate.
type DCPlanYear struct {
	SimulationYear             int     `json:"simulation_year" db:"simulation_year"`
	ParticipationRate          float64 `json:"participation_rate" db:"participation_rate"`
	AvgDeferralRate            float64 `json:"avg_deferral_rate" db:"avg_deferral_rate"`
	TotalEmployeeContributions float64 `json:"total_employee_contributions" db:"total_employee_contributions"`
	TotalEmployerMatch         float64 `json:"total_employer_match" db:"total_employer_match"`
	TotalEmployerCore          float64 `json:"total_employer_core" db:"total_employer_core"`
	TotalEmployerCost          float64 `json:"total_employer_cost" db:"total_employer_cost"`
	TotalCompensation          float64 `json:"total_compensation" db:"total_compensation"`
	ParticipantCount           int64   `json:"participant_count" db:"participant_count"`
	EmployerCostRate           float64 `json:"employer_cost_rate" db:"employer_cost_rate"`
}

// CAGRMetric is a compound annual growth rate row for one summary metric.
type CAGRMetric struct {
	Metric     string  `json:"metric"`
	StartValue float64 `json:"start_value"`
	EndValue   float64 `json:"end_value"`
	Years      int     `json:"years"`
	CAGRPct    float64 `json:"cagr_pct"`
}

// SimulationResults aggregates a scenario's result database.
type SimulationResults struct {
	ScenarioID           string                 `json:"scenario_id"`
	StartYear            int                    `json:"start_year"`
	EndYear              int                    `json:"end_year"`
	FinalHeadcount       int64                  `json:"final_headcount"`
	TotalGrowthPct       float64                `json:"total_growth_pct"`
	CAGR                 float64                `json:"cagr"`
	ParticipationRate    float64                `json:"participation_rate"`
	WorkforceProgression []WorkforceYear        `json:"workforce_progression"`
	EventTrends          map[string][]int64     `json:"event_trends"`
	CompensationByStatus []CompensationByStatus `json:"compensation_by_status"`
	DCPlanByYear         []DCPlanYear           `json:"dc_plan_by_year"`
	CAGRMetrics          []CAGRMetric           `json:"cagr_metrics"`
	// DatabaseSource records which database answered the queries
	// (scenario, workspace, or project).
	DatabaseSource string `json:"database_source"`
}

// WorkforceMetrics is the per-scenario workforce slice of a comparison year.
type WorkforceMetrics struct {
	Headcount  int64   `json:"headcount"`
	Active     int64   `json:"active"`
	Terminated int64   `json:"terminated"`
	NewHires   int64   `json:"new_hires"`
	GrowthPct  float64 `json:"growth_pct"`
}

// DCPlanMetrics is the per-scenario DC plan slice of a comparison year.
type DCPlanMetrics struct {
	ParticipationRate          float64 `json:"participation_rate"`
	AvgDeferralRate            float64 `json:"avg_deferral_rate"`
	TotalEmployeeContributions float64 `json:"total_employee_contributions"`
	TotalEmployerMatch         float64 `json:"total_employer_match"`
	TotalEmployerCore          float64 `json:"total_employer_core"`
	TotalEmployerCost          float64 `json:"total_employer_cost"`
	EmployerCostRate           float64 `json:"employer_cost_rate"`
	ParticipantCount           int64   `json:"participant_count"`
}

// WorkforceComparisonYear compares workforce metrics for one year.
// Deltas are scenario minus baseline; the baseline's deltas are all zero.
type WorkforceComparisonYear struct {
	Year   int                         `json:"year"`
	Values map[string]WorkforceMetrics `json:"values"`
	Deltas map[string]WorkforceMetrics `json:"deltas"`
}

// DCPlanComparisonYear compares DC plan metrics for one year.
type DCPlanComparisonYear struct {
	Year   int                      `json:"year"`
	Values map[string]DCPlanMetrics `json:"values"`
	Deltas map[string]DCPlanMetrics `json:"deltas"`
}

// EventComparison compares one event type's count for one year.
type EventComparison struct {
	Metric    string             `json:"metric"`
	Year      int                `json:"year"`
	Baseline  int64              `json:"baseline"`
	Scenarios map[string]int64   `json:"scenarios"`
	Deltas    map[string]int64   `json:"deltas"`
	DeltaPcts map[string]float64 `json:"delta_pcts"`
}

// DeltaValue is a summary metric compared across scenarios.
type DeltaValue struct {
	Baseline  float64            `json:"baseline"`
	Scenarios map[string]float64 `json:"scenarios"`
	Deltas    map[string]float64 `json:"deltas"`
	DeltaPcts map[string]float64 `json:"delta_pcts"`
}

// ComparisonResponse is the multi-scenario comparison result.
type ComparisonResponse struct {
	Scenarios           []string                  `json:"scenarios"`
	ScenarioNames       map[string]string         `json:"scenario_names"`
	BaselineScenario    string                    `json:"baseline_scenario"`
	WorkforceComparison []WorkforceComparisonYear `json:"workforce_comparison"`
	EventComparison     []EventComparison         `json:"event_comparison"`
	DCPlanComparison    []DCPlanComparisonYear    `json:"dc_plan_comparison"`
	SummaryDeltas       map[string]DeltaValue     `json:"summary_deltas"`
}
