// Package seeds validates and persists seed-based configuration: promotion
// hazard parameters and age/tenure band partitions.
//
// Validation is pure: inputs are configuration mappings, no I/O. The CSV
// writer persists validated sections for the simulation engine.
package seeds

import (
	"fmt"
	"sort"

	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/types"
)

// Validation error codes.
const (
	CodeRequired     = "required"
	CodeInvalidType  = "invalid_type"
	CodeInvalidRange = "invalid_range"
	CodeCoverage     = "coverage"
	CodeGap          = "gap"
	CodeOverlap      = "overlap"
)

// Expectations configures stricter multiplier count checks.
// Zero means any count >= 1 is accepted.
type Expectations struct {
	AgeMultiplierCount    int
	TenureMultiplierCount int
}

// ValidateConfig validates every seed section present in the configuration.
// Absent sections are allowed (the engine falls back to defaults). The
// returned slice is empty when all present sections are valid; an update
// mixing valid and invalid sections must be rejected wholesale by callers.
func ValidateConfig(cfg types.ConfigMap, exp Expectations) []errs.FieldError {
	var out []errs.FieldError

	if raw, ok := cfg["promotion_hazard"]; ok {
		section, ok := raw.(map[string]any)
		if !ok {
			out = append(out, errs.FieldError{
				Section: "promotion_hazard",
				Field:   "promotion_hazard",
				Code:    CodeInvalidType,
				Message: "promotion_hazard must be a mapping",
			})
		} else {
			out = append(out, ValidatePromotionHazard(section, exp)...)
		}
	}

	if raw, ok := cfg["age_bands"]; ok {
		out = append(out, ValidateBands(raw, "age")...)
	}
	if raw, ok := cfg["tenure_bands"]; ok {
		out = append(out, ValidateBands(raw, "tenure")...)
	}

	return out
}

// ValidatePromotionHazard checks the promotion hazard parameter bundle:
// base_rate and level_dampener_factor in [0, 1], every multiplier numeric
// and non-negative, and the configured multiplier counts when set.
func ValidatePromotionHazard(section map[string]any, exp Expectations) []errs.FieldError {
	var out []errs.FieldError

	out = append(out, validateRate(section, "base_rate")...)
	out = append(out, validateRate(section, "level_dampener_factor")...)
	out = append(out, validateMultipliers(section, "age_multipliers", "age_band", exp.AgeMultiplierCount)...)
	out = append(out, validateMultipliers(section, "tenure_multipliers", "tenure_band", exp.TenureMultiplierCount)...)

	return out
}

func validateRate(section map[string]any, field string) []errs.FieldError {
	raw, ok := section[field]
	if !ok || raw == nil {
		return []errs.FieldError{{
			Section: "promotion_hazard",
			Field:   field,
			Code:    CodeRequired,
			Message: field + " is required",
		}}
	}
	val, ok := asFloat(raw)
	if !ok {
		return []errs.FieldError{{
			Section: "promotion_hazard",
			Field:   field,
			Code:    CodeInvalidType,
			Message: field + " must be a number",
		}}
	}
	if val < 0 || val > 1 {
		return []errs.FieldError{{
			Section: "promotion_hazard",
			Field:   field,
			Code:    CodeInvalidRange,
			Message: fmt.Sprintf("%s must be between 0.0 and 1.0, got %v", field, val),
		}}
	}
	return nil
}

func validateMultipliers(section map[string]any, field, bandKey string, expected int) []errs.FieldError {
	var out []errs.FieldError

	raw, ok := section[field]
	if !ok {
		raw = []any{}
	}
	entries, ok := raw.([]any)
	if !ok {
		return []errs.FieldError{{
			Section: "promotion_hazard",
			Field:   field,
			Code:    CodeInvalidType,
			Message: field + " must be a list",
		}}
	}

	if len(entries) < 1 {
		out = append(out, errs.FieldError{
			Section: "promotion_hazard",
			Field:   field,
			Code:    CodeRequired,
			Message: fmt.Sprintf("at least one %s entry is required", field),
		})
	} else if expected > 0 && len(entries) != expected {
		out = append(out, errs.FieldError{
			Section: "promotion_hazard",
			Field:   field,
			Code:    CodeInvalidRange,
			Message: fmt.Sprintf("%s expects %d entries, got %d", field, expected, len(entries)),
		})
	}

	for idx, rawEntry := range entries {
		entry, ok := rawEntry.(map[string]any)
		if !ok {
			out = append(out, errs.FieldError{
				Section: "promotion_hazard",
				Field:   fmt.Sprintf("%s[%d]", field, idx),
				Code:    CodeInvalidType,
				Message: "each multiplier entry must be a mapping",
			})
			continue
		}

		if _, ok := entry[bandKey]; !ok {
			out = append(out, errs.FieldError{
				Section: "promotion_hazard",
				Field:   fmt.Sprintf("%s[%d].%s", field, idx, bandKey),
				Code:    CodeRequired,
				Message: bandKey + " is required",
			})
		}

		mult, ok := entry["multiplier"]
		if !ok || mult == nil {
			out = append(out, errs.FieldError{
				Section: "promotion_hazard",
				Field:   fmt.Sprintf("%s[%d].multiplier", field, idx),
				Code:    CodeRequired,
				Message: "multiplier is required",
			})
			continue
		}
		val, ok := asFloat(mult)
		if !ok {
			out = append(out, errs.FieldError{
				Section: "promotion_hazard",
				Field:   fmt.Sprintf("%s[%d].multiplier", field, idx),
				Code:    CodeInvalidType,
				Message: "multiplier must be a number",
			})
			continue
		}
		if val < 0 {
			out = append(out, errs.FieldError{
				Section: "promotion_hazard",
				Field:   fmt.Sprintf("%s[%d].multiplier", field, idx),
				Code:    CodeInvalidRange,
				Message: fmt.Sprintf("multiplier must be >= 0, got %v", val),
			})
		}
	}

	return out
}

// ValidateBands checks an age or tenure band partition: non-empty, every
// element with min < max, sorted coverage starting at 0, and contiguity
// (each max equals the next min). Gap and overlap errors reference both
// offending bands.
func ValidateBands(raw any, kind string) []errs.FieldError {
	section := kind + "_bands"

	bands, ok := decodeBands(raw)
	if !ok {
		return []errs.FieldError{{
			Section: section,
			Field:   "bands",
			Code:    CodeInvalidType,
			Message: "bands must be a list of band mappings",
		}}
	}
	if len(bands) == 0 {
		return []errs.FieldError{{
			Section: section,
			Field:   "bands",
			Code:    CodeCoverage,
			Message: fmt.Sprintf("at least one %s band is required", kind),
		}}
	}

	var out []errs.FieldError
	for idx, band := range bands {
		if band.MaxValue <= band.MinValue {
			out = append(out, errs.FieldError{
				Section: section,
				Field:   fmt.Sprintf("band[%d]", idx),
				Code:    CodeInvalidRange,
				Message: fmt.Sprintf("max_value (%v) must be greater than min_value (%v)", band.MaxValue, band.MinValue),
			})
		}
	}
	// Structural errors make contiguity checks meaningless.
	if len(out) > 0 {
		return out
	}

	sorted := make([]types.Band, len(bands))
	copy(sorted, bands)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinValue < sorted[j].MinValue })

	if sorted[0].MinValue != 0 {
		out = append(out, errs.FieldError{
			Section: section,
			Field:   "band[0].min_value",
			Code:    CodeCoverage,
			Message: fmt.Sprintf("first %s band must start at 0, got %v", kind, sorted[0].MinValue),
		})
	}

	for i := 0; i < len(sorted)-1; i++ {
		cur, next := sorted[i], sorted[i+1]
		switch {
		case cur.MaxValue < next.MinValue:
			out = append(out, errs.FieldError{
				Section: section,
				Field:   fmt.Sprintf("%s-%s", bandRef(cur, i), bandRef(next, i+1)),
				Code:    CodeGap,
				Message: fmt.Sprintf("gap between band ending at %v and band starting at %v", cur.MaxValue, next.MinValue),
			})
		case cur.MaxValue > next.MinValue:
			out = append(out, errs.FieldError{
				Section: section,
				Field:   fmt.Sprintf("%s-%s", bandRef(cur, i), bandRef(next, i+1)),
				Code:    CodeOverlap,
				Message: fmt.Sprintf("band ending at %v overlaps band starting at %v", cur.MaxValue, next.MinValue),
			})
		}
	}

	return out
}

func bandRef(b types.Band, idx int) string {
	if b.BandID != "" {
		return b.BandID
	}
	return fmt.Sprintf("band[%d]", idx)
}

// decodeBands converts an untyped config list into typed bands.
// Accepts []any of mappings or an already-typed []types.Band.
func decodeBands(raw any) ([]types.Band, bool) {
	if typed, ok := raw.([]types.Band); ok {
		return typed, true
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, false
	}

	bands := make([]types.Band, 0, len(list))
	for _, rawEntry := range list {
		entry, ok := rawEntry.(map[string]any)
		if !ok {
			return nil, false
		}
		minVal, minOK := asFloat(entry["min_value"])
		maxVal, maxOK := asFloat(entry["max_value"])
		if !minOK || !maxOK {
			return nil, false
		}
		band := types.Band{MinValue: minVal, MaxValue: maxVal}
		if id, ok := entry["band_id"].(string); ok {
			band.BandID = id
		}
		if label, ok := entry["band_label"].(string); ok {
			band.BandLabel = label
		}
		if order, ok := asFloat(entry["display_order"]); ok {
			band.DisplayOrder = int(order)
		}
		bands = append(bands, band)
	}
	return bands, true
}

// asFloat accepts the numeric representations YAML and JSON decoding produce.
func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}
