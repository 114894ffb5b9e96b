// Package jsonmerge merges partial classification results. Premium model
// scores are cached per model family, so a single logical result is often
// assembled from a cached fragment plus a freshly fetched fragment whose
// categories are nested objects.
package jsonmerge

// Deep recursively merges src into dst and returns the merged document.
// Nested maps are merged key by key; on a leaf conflict the src value wins.
// Neither input map is modified.
func Deep(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		sm, srcIsMap := v.(map[string]any)
		dm, dstIsMap := out[k].(map[string]any)
		if srcIsMap && dstIsMap {
			out[k] = Deep(dm, sm)
			continue
		}
		out[k] = v
	}
	return out
}

// Resolve walks a dotted category path (e.g. "nudity.raw") through a merged
// result and reports the numeric value found, if any.
func Resolve(doc map[string]any, path []string) (float64, bool) {
	cur := any(doc)
	for _, part := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return 0, false
		}
		cur, ok = m[part]
		if !ok {
			return 0, false
		}
	}
	switch v := cur.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
