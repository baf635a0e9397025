package filter

import "strings"

// Normalize returns the canonical form of filters: null entries are dropped,
// strings are trimmed and lowercased, mappings and sequences are normalized
// recursively. Sequence order is kept. The input is not modified.
func Normalize(filters FilterSet) FilterSet {
	out := make(FilterSet, len(filters))
	for name, v := range filters {
		if v.IsNull() {
			continue
		}
		out[name] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v Value) Value {
	switch v.Kind() {
	case KindString:
		return Str(strings.ToLower(strings.TrimSpace(v.str)))
	case KindMapping:
		return Map(Normalize(v.m))
	case KindSequence:
		items := make([]Value, 0, len(v.seq))
		for _, item := range v.seq {
			if item.IsNull() {
				continue
			}
			items = append(items, normalizeValue(item))
		}
		return List(items...)
	case KindNull, KindNumber, KindBool:
		return v
	default:
		return v
	}
}
