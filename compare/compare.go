// Package compare combines per-scenario result data into multi-scenario
// deltas against a baseline.
package compare

import (
	"context"
	"fmt"
	"sort"

	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/log"
	"github.com/justapithecus/planalign/results"
	"github.com/justapithecus/planalign/store"
	"github.com/justapithecus/planalign/types"
)

// MaxScenarios bounds a side-by-side comparison.
const MaxScenarios = 6

// comparedEventTypes are the event types included in event comparison.
var comparedEventTypes = []string{"HIRE", "TERMINATION", "PROMOTION", "RAISE"}

// Engine builds scenario comparisons from reader data.
type Engine struct {
	store  *store.Store
	reader *results.Reader
	logger *log.Logger
}

// NewEngine creates a comparison engine.
func NewEngine(st *store.Store, reader *results.Reader, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.NewLogger(log.RunContext{})
	}
	return &Engine{store: st, reader: reader, logger: logger}
}

// Compare loads each scenario's data and computes per-year values and
// deltas against the baseline. The baseline is inserted into the set when
// missing. Deltas are scenario minus baseline; the baseline's own deltas
// are all zero.
func (e *Engine) Compare(ctx context.Context, workspaceID string, scenarioIDs []string, baselineID string) (*types.ComparisonResponse, error) {
	if baselineID != "" && !contains(scenarioIDs, baselineID) {
		scenarioIDs = append([]string{baselineID}, scenarioIDs...)
	}
	if len(scenarioIDs) < 2 {
		return nil, errs.New(errs.ErrValidation, "compare", workspaceID, fmt.Errorf("need at least 2 scenarios"))
	}
	if len(scenarioIDs) > MaxScenarios {
		return nil, errs.New(errs.ErrValidation, "compare", workspaceID, fmt.Errorf("at most %d scenarios can be compared", MaxScenarios))
	}
	if baselineID == "" {
		baselineID = scenarioIDs[0]
	}

	data := make(map[string]*results.ScenarioData, len(scenarioIDs))
	names := make(map[string]string, len(scenarioIDs))
	for _, id := range scenarioIDs {
		sd, err := e.reader.LoadScenarioData(ctx, workspaceID, id)
		if err != nil {
			e.logger.Warn("could not load scenario data", map[string]any{"scenario_id": id, "error": err.Error()})
			continue
		}
		data[id] = sd
		if sc, err := e.store.GetScenario(workspaceID, id); err == nil && sc != nil {
			names[id] = sc.Name
		}
	}

	if _, ok := data[baselineID]; !ok {
		return nil, errs.New(errs.ErrPrecondition, "compare", baselineID, fmt.Errorf("baseline scenario has no result data"))
	}

	return BuildComparison(data, names, scenarioIDs, baselineID), nil
}

// BuildComparison combines already-loaded scenario data into the full
// comparison response. The baseline id must be a key of data.
func BuildComparison(data map[string]*results.ScenarioData, names map[string]string, scenarioIDs []string, baselineID string) *types.ComparisonResponse {
	baseline := data[baselineID]
	return &types.ComparisonResponse{
		Scenarios:           scenarioIDs,
		ScenarioNames:       names,
		BaselineScenario:    baselineID,
		WorkforceComparison: buildWorkforceComparison(data, baseline, baselineID),
		EventComparison:     buildEventComparison(data, baseline, baselineID),
		DCPlanComparison:    buildDCPlanComparison(data, baseline, baselineID),
		SummaryDeltas:       buildSummaryDeltas(data, baseline, baselineID),
	}
}

func buildWorkforceComparison(data map[string]*results.ScenarioData, baseline *results.ScenarioData, baselineID string) []types.WorkforceComparisonYear {
	years := collectYears(data, func(sd *results.ScenarioData) []int {
		out := make([]int, 0, len(sd.Workforce))
		for _, row := range sd.Workforce {
			out = append(out, row.Year)
		}
		return out
	})

	prevHeadcounts := make(map[string]int64)
	var comparison []types.WorkforceComparisonYear

	for _, year := range years {
		baseRow := workforceForYear(baseline, year)
		if baseRow == nil {
			continue
		}

		baseHires := baseline.HiresByYear[year]
		basePrev, hasPrev := prevHeadcounts[baselineID]
		if !hasPrev {
			basePrev = baseRow.Headcount
		}
		baseMetrics := types.WorkforceMetrics{
			Headcount:  baseRow.Headcount,
			Active:     baseRow.Active,
			Terminated: baseRow.Terminated,
			NewHires:   baseHires,
			GrowthPct:  growthPct(basePrev, baseRow.Headcount),
		}

		values := map[string]types.WorkforceMetrics{baselineID: baseMetrics}
		deltas := map[string]types.WorkforceMetrics{baselineID: {}}

		for scenarioID, sd := range data {
			if scenarioID == baselineID {
				continue
			}
			row := workforceForYear(sd, year)
			if row == nil {
				continue
			}
			hires := sd.HiresByYear[year]
			prev, hasPrev := prevHeadcounts[scenarioID]
			if !hasPrev {
				prev = row.Headcount
			}
			metrics := types.WorkforceMetrics{
				Headcount:  row.Headcount,
				Active:     row.Active,
				Terminated: row.Terminated,
				NewHires:   hires,
				GrowthPct:  growthPct(prev, row.Headcount),
			}
			values[scenarioID] = metrics
			deltas[scenarioID] = types.WorkforceMetrics{
				Headcount:  metrics.Headcount - baseMetrics.Headcount,
				Active:     metrics.Active - baseMetrics.Active,
				Terminated: metrics.Terminated - baseMetrics.Terminated,
				NewHires:   metrics.NewHires - baseMetrics.NewHires,
				GrowthPct:  metrics.GrowthPct - baseMetrics.GrowthPct,
			}
			prevHeadcounts[scenarioID] = row.Headcount
		}
		prevHeadcounts[baselineID] = baseRow.Headcount

		comparison = append(comparison, types.WorkforceComparisonYear{Year: year, Values: values, Deltas: deltas})
	}

	return comparison
}

func buildEventComparison(data map[string]*results.ScenarioData, baseline *results.ScenarioData, baselineID string) []types.EventComparison {
	years := collectYears(data, func(sd *results.ScenarioData) []int {
		out := make([]int, 0, len(sd.Events))
		for _, ev := range sd.Events {
			out = append(out, ev.Year)
		}
		return out
	})

	var comparison []types.EventComparison
	for _, year := range years {
		for _, eventType := range comparedEventTypes {
			baseValue := eventCount(baseline, year, eventType)

			scenarios := make(map[string]int64, len(data))
			deltas := make(map[string]int64, len(data))
			deltaPcts := make(map[string]float64, len(data))

			for scenarioID, sd := range data {
				if scenarioID == baselineID {
					scenarios[scenarioID] = baseValue
					deltas[scenarioID] = 0
					deltaPcts[scenarioID] = 0
					continue
				}
				value := eventCount(sd, year, eventType)
				scenarios[scenarioID] = value
				deltas[scenarioID] = value - baseValue
				if baseValue > 0 {
					deltaPcts[scenarioID] = float64(value-baseValue) / float64(baseValue) * 100
				}
			}

			comparison = append(comparison, types.EventComparison{
				Metric:    eventMetricName(eventType),
				Year:      year,
				Baseline:  baseValue,
				Scenarios: scenarios,
				Deltas:    deltas,
				DeltaPcts: deltaPcts,
			})
		}
	}
	return comparison
}

func buildDCPlanComparison(data map[string]*results.ScenarioData, baseline *results.ScenarioData, baselineID string) []types.DCPlanComparisonYear {
	years := collectYears(data, func(sd *results.ScenarioData) []int {
		out := make([]int, 0, len(sd.DCPlan))
		for _, row := range sd.DCPlan {
			out = append(out, row.SimulationYear)
		}
		return out
	})

	var comparison []types.DCPlanComparisonYear
	for _, year := range years {
		baseRow := dcPlanForYear(baseline, year)
		if baseRow == nil {
			continue
		}
		baseMetrics := dcMetrics(baseRow)

		values := map[string]types.DCPlanMetrics{baselineID: baseMetrics}
		deltas := map[string]types.DCPlanMetrics{baselineID: {}}

		for scenarioID, sd := range data {
			if scenarioID == baselineID {
				continue
			}
			row := dcPlanForYear(sd, year)
			if row == nil {
				continue
			}
			metrics := dcMetrics(row)
			values[scenarioID] = metrics
			deltas[scenarioID] = types.DCPlanMetrics{
				ParticipationRate:          metrics.ParticipationRate - baseMetrics.ParticipationRate,
				AvgDeferralRate:            metrics.AvgDeferralRate - baseMetrics.AvgDeferralRate,
				TotalEmployeeContributions: metrics.TotalEmployeeContributions - baseMetrics.TotalEmployeeContributions,
				TotalEmployerMatch:         metrics.TotalEmployerMatch - baseMetrics.TotalEmployerMatch,
				TotalEmployerCore:          metrics.TotalEmployerCore - baseMetrics.TotalEmployerCore,
				TotalEmployerCost:          metrics.TotalEmployerCost - baseMetrics.TotalEmployerCost,
				EmployerCostRate:           metrics.EmployerCostRate - baseMetrics.EmployerCostRate,
				ParticipantCount:           metrics.ParticipantCount - baseMetrics.ParticipantCount,
			}
		}

		comparison = append(comparison, types.DCPlanComparisonYear{Year: year, Values: values, Deltas: deltas})
	}
	return comparison
}

func buildSummaryDeltas(data map[string]*results.ScenarioData, baseline *results.ScenarioData, baselineID string) map[string]types.DeltaValue {
	summary := make(map[string]types.DeltaValue, 4)

	summary["final_headcount"] = summarize(data, baselineID, func(sd *results.ScenarioData) float64 {
		if len(sd.Workforce) == 0 {
			return 0
		}
		return float64(sd.Workforce[len(sd.Workforce)-1].Headcount)
	})

	summary["total_growth_pct"] = summarize(data, baselineID, func(sd *results.ScenarioData) float64 {
		if len(sd.Workforce) == 0 {
			return 0
		}
		initial := sd.Workforce[0].Headcount
		final := sd.Workforce[len(sd.Workforce)-1].Headcount
		return growthPct(initial, final)
	})

	summary["final_participation_rate"] = summarize(data, baselineID, func(sd *results.ScenarioData) float64 {
		if len(sd.DCPlan) == 0 {
			return 0
		}
		return sd.DCPlan[len(sd.DCPlan)-1].ParticipationRate
	})

	summary["final_employer_cost"] = summarize(data, baselineID, func(sd *results.ScenarioData) float64 {
		if len(sd.DCPlan) == 0 {
			return 0
		}
		return sd.DCPlan[len(sd.DCPlan)-1].TotalEmployerCost
	})

	return summary
}

// summarize computes one end-state metric across scenarios with deltas
// against the baseline. Delta percentages use the baseline magnitude and
// collapse to 0 when the baseline is zero.
func summarize(data map[string]*results.ScenarioData, baselineID string, metric func(*results.ScenarioData) float64) types.DeltaValue {
	baselineValue := 0.0
	if base, ok := data[baselineID]; ok {
		baselineValue = metric(base)
	}

	value := types.DeltaValue{
		Baseline:  baselineValue,
		Scenarios: make(map[string]float64, len(data)),
		Deltas:    make(map[string]float64, len(data)),
		DeltaPcts: make(map[string]float64, len(data)),
	}

	for scenarioID, sd := range data {
		v := metric(sd)
		value.Scenarios[scenarioID] = v
		delta := v - baselineValue
		value.Deltas[scenarioID] = delta
		if baselineValue != 0 {
			value.DeltaPcts[scenarioID] = delta / abs(baselineValue) * 100
		}
	}
	return value
}

func collectYears(data map[string]*results.ScenarioData, yearsOf func(*results.ScenarioData) []int) []int {
	seen := make(map[int]bool)
	for _, sd := range data {
		for _, year := range yearsOf(sd) {
			seen[year] = true
		}
	}
	years := make([]int, 0, len(seen))
	for year := range seen {
		years = append(years, year)
	}
	sort.Ints(years)
	return years
}

func workforceForYear(sd *results.ScenarioData, year int) *results.WorkforceRow {
	for i := range sd.Workforce {
		if sd.Workforce[i].Year == year {
			return &sd.Workforce[i]
		}
	}
	return nil
}

func dcPlanForYear(sd *results.ScenarioData, year int) *types.DCPlanYear {
	for i := range sd.DCPlan {
		if sd.DCPlan[i].SimulationYear == year {
			return &sd.DCPlan[i]
		}
	}
	return nil
}

func dcMetrics(row *types.DCPlanYear) types.DCPlanMetrics {
	return types.DCPlanMetrics{
		ParticipationRate:          row.ParticipationRate,
		AvgDeferralRate:            row.AvgDeferralRate,
		TotalEmployeeContributions: row.TotalEmployeeContributions,
		TotalEmployerMatch:         row.TotalEmployerMatch,
		TotalEmployerCore:          row.TotalEmployerCore,
		TotalEmployerCost:          row.TotalEmployerCost,
		EmployerCostRate:           row.EmployerCostRate,
		ParticipantCount:           row.ParticipantCount,
	}
}

func eventCount(sd *results.ScenarioData, year int, eventType string) int64 {
	for _, ev := range sd.Events {
		if ev.Year == year && ev.EventType == eventType {
			return ev.Count
		}
	}
	return 0
}

func eventMetricName(eventType string) string {
	switch eventType {
	case "HIRE":
		return "hires"
	case "TERMINATION":
		return "terminations"
	case "PROMOTION":
		return "promotions"
	case "RAISE":
		return "raises"
	}
	return eventType
}

func growthPct(prev, current int64) float64 {
	if prev <= 0 {
		return 0
	}
	return float64(current-prev) / float64(prev) * 100
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
