// Package sanitize strips absent values from job payloads before they are
// persisted or sealed.
package sanitize

// Map returns a copy of m without nil entries, recursing into nested maps
// and slices. A nil map yields nil.
func Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		out[k] = Value(v)
	}
	return out
}

// Slice returns a copy of s without nil elements. Order of the remaining
// elements is preserved.
func Slice(s []any) []any {
	if s == nil {
		return nil
	}
	out := make([]any, 0, len(s))
	for _, v := range s {
		if v == nil {
			continue
		}
		out = append(out, Value(v))
	}
	return out
}

// Value sanitizes v. Maps and slices are cleaned recursively, every other
// value is returned unchanged.
func Value(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Map(t)
	case []any:
		return Slice(t)
	case []map[string]any:
		out := make([]map[string]any, 0, len(t))
		for _, m := range t {
			if m == nil {
				continue
			}
			out = append(out, Map(m))
		}
		return out
	default:
		return v
	}
}
