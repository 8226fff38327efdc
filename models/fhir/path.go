// Package fhir holds small helpers for navigating FHIR resources decoded into
// generic JSON values.
package fhir

// Get walks v along path. A string step selects an object key, an int step a
// list element. It reports false as soon as a step does not resolve, so
// callers never need to guard intermediate levels.
func Get(v any, path ...any) (any, bool) {
	cur := v
	for _, step := range path {
		switch s := step.(type) {
		case string:
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			next, ok := obj[s]
			if !ok {
				return nil, false
			}
			cur = next
		case int:
			list, ok := cur.([]any)
			if !ok || s < 0 || s >= len(list) {
				return nil, false
			}
			cur = list[s]
		default:
			return nil, false
		}
	}
	return cur, true
}

// GetString is Get restricted to string leaves.
func GetString(v any, path ...any) (string, bool) {
	got, ok := Get(v, path...)
	if !ok {
		return "", false
	}
	s, ok := got.(string)
	return s, ok
}

// List returns the list at path, or nil.
func List(v any, path ...any) []any {
	got, ok := Get(v, path...)
	if !ok {
		return nil
	}
	list, _ := got.([]any)
	return list
}
