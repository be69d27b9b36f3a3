package diffengine

import "strconv"

// Document is a parsed knowledge-base record: a tree of string-keyed
// mappings, sequences, and scalar leaves as produced by yaml.Unmarshal.
type Document = map[string]any

// Flatten walks a nested structure and returns a mapping from node path to
// leaf value. Non-empty containers are recursed into; empty containers and
// scalars are leaves. A bare scalar at the root has no path and emits nothing.
func Flatten(data any) map[string]any {
	return flattenInto(data, "", make(map[string]any))
}

func flattenInto(data any, prefix string, nodes map[string]any) map[string]any {
	switch v := data.(type) {
	case map[string]any:
		for key, value := range v {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			if isNonEmptyContainer(value) {
				flattenInto(value, path, nodes)
			} else {
				nodes[path] = value
			}
		}
	case []any:
		for i, item := range v {
			path := prefix + "[" + strconv.Itoa(i) + "]"
			if isNonEmptyContainer(item) {
				flattenInto(item, path, nodes)
			} else {
				nodes[path] = item
			}
		}
	default:
		if prefix != "" {
			nodes[prefix] = data
		}
	}
	return nodes
}

func isNonEmptyContainer(v any) bool {
	switch c := v.(type) {
	case map[string]any:
		return len(c) > 0
	case []any:
		return len(c) > 0
	}
	return false
}
