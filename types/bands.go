package types

// Band is a half-open numeric interval [MinValue, MaxValue) used to
// partition employee ages or tenures.
//
// A valid band set is sorted by MinValue, starts at 0, and is contiguous:
// each band's MaxValue equals the next band's MinValue.
type Band struct {
	BandID       string  `json:"band_id" yaml:"band_id"`
	BandLabel    string  `json:"band_label" yaml:"band_label"`
	MinValue     float64 `json:"min_value" yaml:"min_value"`
	MaxValue     float64 `json:"max_value" yaml:"max_value"`
	DisplayOrder int     `json:"display_order" yaml:"display_order"`
}

// BandMultiplier scales the promotion hazard for one band.
type BandMultiplier struct {
	Band       string  `json:"band" yaml:"band"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
}

// PromotionHazard is the promotion hazard parameter bundle.
// Rates are probabilities in [0, 1]; multipliers are non-negative.
type PromotionHazard struct {
	BaseRate            float64          `json:"base_rate" yaml:"base_rate"`
	LevelDampenerFactor float64          `json:"level_dampener_factor" yaml:"level_dampener_factor"`
	AgeMultipliers      []BandMultiplier `json:"age_multipliers" yaml:"age_multipliers"`
	TenureMultipliers   []BandMultiplier `json:"tenure_multipliers" yaml:"tenure_multipliers"`
}
