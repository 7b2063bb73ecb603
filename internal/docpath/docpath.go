// Package docpath reads values out of loosely structured documents
// (JSON decoded into map[string]any) by dotted path. Provider responses are
// only partially predictable, so every lookup is best effort: a missing key
// or a non-object intermediate yields no value instead of an error.
package docpath

import "strings"

// Lookup walks doc segment by segment for a dotted path such as
// "search_parameters.departure_id". The second return value reports whether
// the full path resolved; an explicit JSON null resolves to (nil, true).
func Lookup(doc map[string]any, path string) (any, bool) {
	if doc == nil || path == "" {
		return nil, false
	}

	var current any = doc
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Extract returns a flat mapping from each requested path to its value.
// Unresolvable paths map to nil, so the result always has one entry per
// requested path.
func Extract(doc map[string]any, paths []string) map[string]any {
	out := make(map[string]any, len(paths))
	for _, p := range paths {
		v, ok := Lookup(doc, p)
		if !ok {
			out[p] = nil
			continue
		}
		out[p] = v
	}
	return out
}

// Leaf returns the last segment of a dotted path.
func Leaf(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}
