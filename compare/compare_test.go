package compare

import (
	"math"
	"testing"

	"github.com/justapithecus/planalign/results"
	"github.com/justapithecus/planalign/types"
)

// Fixture: baseline B and scenario A over 2025 and 2026 (DC plan data for
// 2025 only). B has 2 of 3 actives enrolled; A enrolls all 3 and spends more
// employer money.
func comparisonFixture() map[string]*results.ScenarioData {
	return map[string]*results.ScenarioData{
		"B": {
			Workforce: []results.WorkforceRow{
				{Year: 2025, Headcount: 3, Active: 3, Terminated: 0},
				{Year: 2026, Headcount: 4, Active: 4, Terminated: 0},
			},
			Events: []results.EventRow{
				{Year: 2025, EventType: "HIRE", Count: 1},
				{Year: 2026, EventType: "HIRE", Count: 2},
			},
			HiresByYear: map[int]int64{2025: 1, 2026: 2},
			DCPlan: []types.DCPlanYear{
				{
					SimulationYear:    2025,
					ParticipationRate: 200.0 / 3.0, // 2 of 3 actives enrolled
					TotalEmployerCost: 8750,
					TotalCompensation: 350000,
					ParticipantCount:  2,
				},
			},
		},
		"A": {
			Workforce: []results.WorkforceRow{
				{Year: 2025, Headcount: 3, Active: 3, Terminated: 0},
				{Year: 2026, Headcount: 5, Active: 5, Terminated: 0},
			},
			Events: []results.EventRow{
				{Year: 2025, EventType: "HIRE", Count: 2},
				{Year: 2026, EventType: "TERMINATION", Count: 1},
			},
			HiresByYear: map[int]int64{2025: 2},
			DCPlan: []types.DCPlanYear{
				{
					SimulationYear:    2025,
					ParticipationRate: 100.0,
					TotalEmployerCost: 13000,
					TotalCompensation: 350000,
					ParticipantCount:  3,
				},
			},
		},
	}
}

func TestBuildComparison_DCPlanDeltas(t *testing.T) {
	response := BuildComparison(comparisonFixture(), nil, []string{"B", "A"}, "B")

	if len(response.DCPlanComparison) != 1 {
		t.Fatalf("expected one dc plan year, got %d", len(response.DCPlanComparison))
	}
	year := response.DCPlanComparison[0]
	if year.Year != 2025 {
		t.Fatalf("expected year 2025, got %d", year.Year)
	}

	if got := year.Values["B"].ParticipationRate; math.Abs(got-66.6667) > 0.01 {
		t.Errorf("baseline participation: expected ~66.67, got %v", got)
	}
	if got := year.Values["A"].ParticipationRate; got != 100.0 {
		t.Errorf("scenario participation: expected 100, got %v", got)
	}
	if got := year.Deltas["A"].ParticipationRate; math.Abs(got-33.3333) > 0.01 {
		t.Errorf("participation delta: expected ~+33.33, got %v", got)
	}
	if got := year.Deltas["A"].TotalEmployerCost; got != 4250 {
		t.Errorf("employer cost delta: expected +4250, got %v", got)
	}

	// Baseline deltas are all zero.
	if year.Deltas["B"] != (types.DCPlanMetrics{}) {
		t.Errorf("baseline deltas must be zero, got %+v", year.Deltas["B"])
	}
}

func TestBuildComparison_EventDeltas(t *testing.T) {
	response := BuildComparison(comparisonFixture(), nil, []string{"B", "A"}, "B")

	var hires2025 *types.EventComparison
	for i := range response.EventComparison {
		ec := &response.EventComparison[i]
		if ec.Metric == "hires" && ec.Year == 2025 {
			hires2025 = ec
		}
	}
	if hires2025 == nil {
		t.Fatal("expected hires comparison for 2025")
	}

	if hires2025.Baseline != 1 {
		t.Errorf("expected baseline 1, got %d", hires2025.Baseline)
	}
	if hires2025.Deltas["A"] != 1 || hires2025.DeltaPcts["A"] != 100.0 {
		t.Errorf("expected +1 (+100%%), got %d (%v%%)", hires2025.Deltas["A"], hires2025.DeltaPcts["A"])
	}
	if hires2025.Deltas["B"] != 0 || hires2025.DeltaPcts["B"] != 0 {
		t.Errorf("baseline deltas must be zero")
	}

	// Zero baseline: percentage collapses to 0.
	var term2026 *types.EventComparison
	for i := range response.EventComparison {
		ec := &response.EventComparison[i]
		if ec.Metric == "terminations" && ec.Year == 2026 {
			term2026 = ec
		}
	}
	if term2026 == nil {
		t.Fatal("expected terminations comparison for 2026")
	}
	if term2026.Deltas["A"] != 1 || term2026.DeltaPcts["A"] != 0 {
		t.Errorf("zero baseline must yield 0%%, got %v", term2026.DeltaPcts["A"])
	}
}

func TestBuildComparison_WorkforceAndSummary(t *testing.T) {
	response := BuildComparison(comparisonFixture(), nil, []string{"B", "A"}, "B")

	if len(response.WorkforceComparison) != 2 {
		t.Fatalf("expected two workforce years, got %d", len(response.WorkforceComparison))
	}
	y2026 := response.WorkforceComparison[1]
	if y2026.Deltas["A"].Headcount != 1 {
		t.Errorf("2026 headcount delta: expected +1, got %d", y2026.Deltas["A"].Headcount)
	}

	final := response.SummaryDeltas["final_headcount"]
	if final.Baseline != 4 || final.Scenarios["A"] != 5 || final.Deltas["A"] != 1 {
		t.Errorf("unexpected final headcount summary %+v", final)
	}
	if math.Abs(final.DeltaPcts["A"]-25.0) > 1e-9 {
		t.Errorf("expected +25%% final headcount, got %v", final.DeltaPcts["A"])
	}

	cost := response.SummaryDeltas["final_employer_cost"]
	if cost.Deltas["A"] != 4250 {
		t.Errorf("expected employer cost delta 4250, got %v", cost.Deltas["A"])
	}
}
