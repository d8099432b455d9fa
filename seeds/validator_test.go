package seeds

import (
	"strings"
	"testing"

	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/types"
)

func band(id string, min, max float64) map[string]any {
	return map[string]any{
		"band_id":       id,
		"band_label":    id,
		"min_value":     min,
		"max_value":     max,
		"display_order": 1,
	}
}

func codes(fieldErrs []errs.FieldError) []string {
	out := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, fe.Code)
	}
	return out
}

func TestValidateBands_GapReferencesBothBands(t *testing.T) {
	fieldErrs := ValidateBands([]any{
		band("band_1", 0, 25),
		band("band_2", 30, 40),
	}, "age")

	if len(fieldErrs) != 1 {
		t.Fatalf("expected exactly one error, got %v", fieldErrs)
	}
	fe := fieldErrs[0]
	if fe.Code != CodeGap {
		t.Errorf("expected gap code, got %s", fe.Code)
	}
	if !strings.Contains(fe.Field, "band_1") || !strings.Contains(fe.Field, "band_2") {
		t.Errorf("gap error must reference both bands, got %q", fe.Field)
	}
}

func TestValidateBands_ContiguousPartitionIsClean(t *testing.T) {
	fieldErrs := ValidateBands([]any{
		band("band_1", 0, 25),
		band("band_2", 25, 40),
	}, "age")
	if len(fieldErrs) != 0 {
		t.Errorf("expected clean validation, got %v", fieldErrs)
	}
}

func TestValidateBands_Overlap(t *testing.T) {
	fieldErrs := ValidateBands([]any{
		band("b1", 0, 30),
		band("b2", 25, 40),
	}, "tenure")
	if len(fieldErrs) != 1 || fieldErrs[0].Code != CodeOverlap {
		t.Errorf("expected one overlap error, got %v", fieldErrs)
	}
}

func TestValidateBands_FirstMustStartAtZero(t *testing.T) {
	fieldErrs := ValidateBands([]any{
		band("b1", 5, 30),
		band("b2", 30, 40),
	}, "age")
	if len(fieldErrs) != 1 || fieldErrs[0].Code != CodeCoverage {
		t.Errorf("expected one coverage error, got %v", fieldErrs)
	}
}

func TestValidateBands_InvertedRange(t *testing.T) {
	fieldErrs := ValidateBands([]any{band("b1", 10, 10)}, "age")
	if len(fieldErrs) != 1 || fieldErrs[0].Code != CodeInvalidRange {
		t.Errorf("expected invalid_range, got %v", fieldErrs)
	}
}

func TestValidateBands_Empty(t *testing.T) {
	fieldErrs := ValidateBands([]any{}, "age")
	if len(fieldErrs) != 1 || fieldErrs[0].Code != CodeCoverage {
		t.Errorf("expected coverage error for empty set, got %v", fieldErrs)
	}
}

func TestValidateBands_UnsortedInputIsSortedFirst(t *testing.T) {
	fieldErrs := ValidateBands([]any{
		band("b2", 25, 40),
		band("b1", 0, 25),
	}, "age")
	if len(fieldErrs) != 0 {
		t.Errorf("unsorted but contiguous bands must validate, got %v", fieldErrs)
	}
}

func validHazard() map[string]any {
	return map[string]any{
		"base_rate":             0.1,
		"level_dampener_factor": 0.4,
		"age_multipliers": []any{
			map[string]any{"age_band": "25-34", "multiplier": 1.2},
		},
		"tenure_multipliers": []any{
			map[string]any{"tenure_band": "0-2", "multiplier": 0.8},
		},
	}
}

func TestValidatePromotionHazard_Valid(t *testing.T) {
	if fieldErrs := ValidatePromotionHazard(validHazard(), Expectations{}); len(fieldErrs) != 0 {
		t.Errorf("expected clean validation, got %v", fieldErrs)
	}
}

func TestValidatePromotionHazard_RateBounds(t *testing.T) {
	hazard := validHazard()
	hazard["base_rate"] = 1.5
	hazard["level_dampener_factor"] = -0.1

	fieldErrs := ValidatePromotionHazard(hazard, Expectations{})
	got := codes(fieldErrs)
	if len(got) != 2 || got[0] != CodeInvalidRange || got[1] != CodeInvalidRange {
		t.Errorf("expected two invalid_range errors, got %v", fieldErrs)
	}
}

func TestValidatePromotionHazard_MissingAndTyped(t *testing.T) {
	hazard := map[string]any{
		"level_dampener_factor": "high",
		"age_multipliers": []any{
			map[string]any{"multiplier": -1.0},
		},
		"tenure_multipliers": []any{
			map[string]any{"tenure_band": "0-2"},
		},
	}

	fieldErrs := ValidatePromotionHazard(hazard, Expectations{})
	byField := map[string]string{}
	for _, fe := range fieldErrs {
		byField[fe.Field] = fe.Code
	}

	if byField["base_rate"] != CodeRequired {
		t.Errorf("expected base_rate required, got %v", byField)
	}
	if byField["level_dampener_factor"] != CodeInvalidType {
		t.Errorf("expected level_dampener_factor invalid_type, got %v", byField)
	}
	if byField["age_multipliers[0].age_band"] != CodeRequired {
		t.Errorf("expected age_band required, got %v", byField)
	}
	if byField["age_multipliers[0].multiplier"] != CodeInvalidRange {
		t.Errorf("expected negative multiplier rejected, got %v", byField)
	}
	if byField["tenure_multipliers[0].multiplier"] != CodeRequired {
		t.Errorf("expected multiplier required, got %v", byField)
	}
}

func TestValidatePromotionHazard_StrictCounts(t *testing.T) {
	fieldErrs := ValidatePromotionHazard(validHazard(), Expectations{AgeMultiplierCount: 6, TenureMultiplierCount: 5})
	if len(fieldErrs) != 2 {
		t.Fatalf("expected two count errors, got %v", fieldErrs)
	}
	for _, fe := range fieldErrs {
		if fe.Code != CodeInvalidRange {
			t.Errorf("expected invalid_range for count mismatch, got %s", fe.Code)
		}
	}
}

func TestValidateConfig_OnlyPresentSectionsChecked(t *testing.T) {
	cfg := types.ConfigMap{
		"simulation": map[string]any{"start_year": 2025},
	}
	if fieldErrs := ValidateConfig(cfg, Expectations{}); len(fieldErrs) != 0 {
		t.Errorf("absent seed sections must be allowed, got %v", fieldErrs)
	}

	cfg["age_bands"] = []any{band("b1", 0, 25), band("b2", 30, 40)}
	cfg["promotion_hazard"] = validHazard()
	fieldErrs := ValidateConfig(cfg, Expectations{})
	if len(fieldErrs) != 1 || fieldErrs[0].Code != CodeGap {
		t.Errorf("expected just the gap error from the bad section, got %v", fieldErrs)
	}
}
