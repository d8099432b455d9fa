package seeds

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/iox"
	"github.com/justapithecus/planalign/types"
)

// Seed CSV file names, fixed schema consumed by the simulation engine.
const (
	FilePromotionHazardBase   = "config_promotion_hazard_base.csv"
	FilePromotionHazardAge    = "config_promotion_hazard_age_multipliers.csv"
	FilePromotionHazardTenure = "config_promotion_hazard_tenure_multipliers.csv"
	FileAgeBands              = "config_age_bands.csv"
	FileTenureBands           = "config_tenure_bands.csv"
)

// WriteAll writes every seed section present in the merged configuration to
// CSV files under seedsDir. All writes are atomic (write-temp then rename)
// so the engine never reads a partial file. Returns the set of sections
// written.
func WriteAll(cfg types.ConfigMap, seedsDir string) (map[string]bool, error) {
	if err := os.MkdirAll(seedsDir, 0o755); err != nil {
		return nil, errs.IO("write_seeds", seedsDir, err)
	}

	written := map[string]bool{
		"promotion_hazard": false,
		"age_bands":        false,
		"tenure_bands":     false,
	}

	if raw, ok := cfg["promotion_hazard"]; ok {
		section, ok := raw.(map[string]any)
		if !ok {
			return written, errs.New(errs.ErrValidation, "write_seeds", "promotion_hazard", fmt.Errorf("not a mapping"))
		}
		if err := writePromotionHazard(section, seedsDir); err != nil {
			return written, err
		}
		written["promotion_hazard"] = true
	}

	if raw, ok := cfg["age_bands"]; ok {
		if err := writeBands(raw, filepath.Join(seedsDir, FileAgeBands)); err != nil {
			return written, err
		}
		written["age_bands"] = true
	}

	if raw, ok := cfg["tenure_bands"]; ok {
		if err := writeBands(raw, filepath.Join(seedsDir, FileTenureBands)); err != nil {
			return written, err
		}
		written["tenure_bands"] = true
	}

	return written, nil
}

// Mirror copies every config_*.csv under srcDir into dstDir atomically.
// The engine reads its global seeds directory, so scenario-local seeds are
// mirrored there before each run.
func Mirror(srcDir, dstDir string) error {
	matches, err := filepath.Glob(filepath.Join(srcDir, "config_*.csv"))
	if err != nil {
		return errs.IO("mirror_seeds", srcDir, err)
	}
	if len(matches) == 0 {
		return nil
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return errs.IO("mirror_seeds", dstDir, err)
	}
	for _, src := range matches {
		data, err := os.ReadFile(src)
		if err != nil {
			return errs.IO("mirror_seeds", src, err)
		}
		dst := filepath.Join(dstDir, filepath.Base(src))
		if err := iox.WriteFileAtomic(dst, data, 0o644); err != nil {
			return errs.IO("mirror_seeds", dst, err)
		}
	}
	return nil
}

func writePromotionHazard(section map[string]any, seedsDir string) error {
	baseRate := section["base_rate"]
	dampener := section["level_dampener_factor"]
	rows := [][]string{
		{"base_rate", "level_dampener_factor"},
		{formatNumber(baseRate), formatNumber(dampener)},
	}
	if err := writeCSV(filepath.Join(seedsDir, FilePromotionHazardBase), rows); err != nil {
		return err
	}

	if err := writeMultiplierCSV(section, "age_multipliers", "age_band",
		filepath.Join(seedsDir, FilePromotionHazardAge)); err != nil {
		return err
	}
	return writeMultiplierCSV(section, "tenure_multipliers", "tenure_band",
		filepath.Join(seedsDir, FilePromotionHazardTenure))
}

func writeMultiplierCSV(section map[string]any, field, bandKey, path string) error {
	rows := [][]string{{bandKey, "multiplier"}}

	if raw, ok := section[field].([]any); ok {
		for _, rawEntry := range raw {
			entry, ok := rawEntry.(map[string]any)
			if !ok {
				continue
			}
			band, _ := entry[bandKey].(string)
			rows = append(rows, []string{band, formatNumber(entry["multiplier"])})
		}
	}

	return writeCSV(path, rows)
}

func writeBands(raw any, path string) error {
	bands, ok := decodeBands(raw)
	if !ok {
		return errs.New(errs.ErrValidation, "write_seeds", path, fmt.Errorf("bands are not a list of mappings"))
	}

	rows := [][]string{{"band_id", "band_label", "min_value", "max_value", "display_order"}}
	for _, band := range bands {
		rows = append(rows, []string{
			band.BandID,
			band.BandLabel,
			formatNumber(band.MinValue),
			formatNumber(band.MaxValue),
			fmt.Sprintf("%d", band.DisplayOrder),
		})
	}

	return writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return errs.IO("write_seeds", path, err)
	}
	if err := iox.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return errs.IO("write_seeds", path, err)
	}
	return nil
}

// formatNumber renders a config numeric without trailing float noise.
func formatNumber(raw any) string {
	if val, ok := asFloat(raw); ok {
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	}
	return fmt.Sprintf("%v", raw)
}
