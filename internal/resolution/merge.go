package resolution

import (
	"math"
	"sort"

	"osint-resolver/pkg/types"
)

// Merge confidence boost parameters: the primary's confidence grows with
// the volume of unioned sources, capped at a small fixed boost.
const (
	mergeBoostPerSource = 0.05
	mergeBoostCap       = 0.3
)

// Merge combines a primary entity and its matched duplicates into one
// entity. Attributes union preferring the primary's non-empty value, then
// the first non-empty value among the others in the given (evidence)
// order; sources are set-unioned. The result is a new entity carrying the
// primary's id; callers own ordering of others, which must be
// deterministic for idempotent merges.
func Merge(primary *types.Entity, others []*types.Entity) *types.Entity {
	merged := primary.Clone()

	// Attribute union. Keys are walked in sorted order per donor so the
	// result never depends on map iteration.
	for _, other := range others {
		keys := make([]string, 0, len(other.Attributes))
		for key := range other.Attributes {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if isEmptyValue(merged.Attributes[key]) && !isEmptyValue(other.Attributes[key]) {
				merged.Attributes[key] = other.Attributes[key]
			}
		}
	}

	// Source set-union, deduplicated by connector+URL, primary first.
	seen := make(map[string]bool, len(merged.Sources))
	for _, src := range merged.Sources {
		seen[src.Key()] = true
	}
	for _, other := range others {
		for _, src := range other.Sources {
			if !seen[src.Key()] {
				seen[src.Key()] = true
				merged.Sources = append(merged.Sources, src)
			}
		}
	}

	boost := math.Min(mergeBoostCap, mergeBoostPerSource*float64(len(merged.Sources)))
	merged.ConfidenceScore = math.Min(100, primary.ConfidenceScore+boost)

	// Merging is itself evidence of ambiguity: the merged record sits at
	// probable, never verified purely by volume.
	merged.VerificationStatus = types.VerificationProbable

	for _, other := range others {
		merged.MergedEntities = append(merged.MergedEntities, other.ID)
		merged.MergedEntities = append(merged.MergedEntities, other.MergedEntities...)
	}
	sort.Strings(merged.MergedEntities)
	merged.MergedEntities = dedupeSorted(merged.MergedEntities)

	merged.Touch()
	return merged
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

func dedupeSorted(values []string) []string {
	out := values[:0]
	for i, v := range values {
		if i == 0 || values[i-1] != v {
			out = append(out, v)
		}
	}
	return out
}
