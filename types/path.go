package types

import "strconv"

// GetPath resolves a dotted path inside a document. Numeric path segments
// index into arrays. The second result reports whether the value is defined;
// an explicit nil counts as defined.
func GetPath(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range SplitPath(path) {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// SetPath assigns value at a dotted path, creating intermediate documents
// as needed. It returns false when the path crosses a scalar or an array
// index that is out of range.
func SetPath(doc map[string]any, path string, value any) bool {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return false
	}
	var cur any = doc
	for i, part := range parts {
		last := i == len(parts)-1
		switch node := cur.(type) {
		case map[string]any:
			if last {
				node[part] = value
				return true
			}
			next, ok := node[part]
			if !ok || next == nil {
				next = map[string]any{}
				node[part] = next
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return false
			}
			if last {
				node[idx] = value
				return true
			}
			cur = node[idx]
		default:
			return false
		}
	}
	return false
}

// UnsetPath removes the value at a dotted path. Array elements are set to
// nil rather than spliced, matching the store's $unset semantics.
func UnsetPath(doc map[string]any, path string) {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return
	}
	parent, ok := GetPath(doc, joinPath(parts[:len(parts)-1]))
	if !ok {
		return
	}
	last := parts[len(parts)-1]
	switch node := parent.(type) {
	case map[string]any:
		delete(node, last)
	case []any:
		if idx, err := strconv.Atoi(last); err == nil && idx >= 0 && idx < len(node) {
			node[idx] = nil
		}
	}
}

// JoinPath joins a parent path and a child segment.
func JoinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

func joinPath(parts []string) string {
	out := ""
	for _, p := range parts {
		out = JoinPath(out, p)
	}
	return out
}
