package store

import "github.com/justapithecus/planalign/types"

// DeepMerge merges overrides onto base, leaf by leaf. Where both sides are
// mappings the merge recurses; everywhere else (scalars, lists, mixed
// types) the override replaces wholesale. Neither input is mutated.
func DeepMerge(base, overrides types.ConfigMap) types.ConfigMap {
	result := make(types.ConfigMap, len(base)+len(overrides))
	for key, value := range base {
		result[key] = value
	}

	for key, value := range overrides {
		existing, hasExisting := result[key]
		if !hasExisting {
			result[key] = value
			continue
		}
		baseMap, baseIsMap := existing.(map[string]any)
		overrideMap, overrideIsMap := value.(map[string]any)
		if baseIsMap && overrideIsMap {
			result[key] = DeepMerge(baseMap, overrideMap)
			continue
		}
		result[key] = value
	}

	return result
}
