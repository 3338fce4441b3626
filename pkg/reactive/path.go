package reactive

import "strconv"

// GetPath walks root along path. Map keys are strings, slice indices are
// ints; a string that parses as an integer also indexes a slice.
func GetPath(root any, path []any) (any, bool) {
	cur := root
	for _, seg := range path {
		switch c := cur.(type) {
		case map[string]any:
			key, ok := pathKey(seg)
			if !ok {
				return nil, false
			}
			v, ok := c[key]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, ok := pathIndex(seg)
			if !ok || idx < 0 || idx >= len(c) {
				return nil, false
			}
			cur = c[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// SetPath returns a copy of root with value stored at path. Only the
// containers along path are copied; every other subtree is shared with root,
// so callers holding the previous root keep an unchanged view.
//
// Missing containers are created: a map for a string segment, a slice for an
// int segment.
func SetPath(root any, path []any, value any) any {
	if len(path) == 0 {
		return value
	}
	seg, rest := path[0], path[1:]

	switch c := root.(type) {
	case map[string]any:
		if key, ok := pathKey(seg); ok {
			next := make(map[string]any, len(c)+1)
			for k, v := range c {
				next[k] = v
			}
			next[key] = SetPath(c[key], rest, value)
			return next
		}
	case []any:
		if idx, ok := pathIndex(seg); ok && idx >= 0 {
			size := len(c)
			if idx >= size {
				size = idx + 1
			}
			next := make([]any, size)
			copy(next, c)
			var child any
			if idx < len(c) {
				child = c[idx]
			}
			next[idx] = SetPath(child, rest, value)
			return next
		}
	}

	// root is not a container that can hold seg; replace it.
	if idx, ok := seg.(int); ok && idx >= 0 {
		next := make([]any, idx+1)
		next[idx] = SetPath(nil, rest, value)
		return next
	}
	key, _ := pathKey(seg)
	return map[string]any{key: SetPath(nil, rest, value)}
}

func pathKey(seg any) (string, bool) {
	switch s := seg.(type) {
	case string:
		return s, true
	case int:
		return strconv.Itoa(s), true
	}
	return "", false
}

func pathIndex(seg any) (int, bool) {
	switch s := seg.(type) {
	case int:
		return s, true
	case string:
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
