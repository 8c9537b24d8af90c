package vars

import (
	"strconv"
	"strings"
)

// Resolution is the outcome of resolving a variable path against a pool.
// ValidPath is false when the root variable is absent or an intermediate
// accessor does not exist on the current value; Root always names the pool
// variable the path started from, for diagnostics. Resolution never fails
// hard; callers substitute nil for invalid paths instead of aborting.
type Resolution struct {
	Value     any
	ValidPath bool
	Root      string
}

// Resolve resolves a dotted/indexed variable reference like
// "user.addresses[0].city" against the pool. The first segment names a pool
// variable; the rest are property or index accessors applied to its value.
func Resolve(pool Pool, path string) Resolution {
	segments := splitPath(path)
	if len(segments) == 0 {
		return Resolution{ValidPath: false}
	}

	root := segments[0].key
	res := Resolution{Root: root}

	v := pool.Lookup(root)
	if v == nil {
		return res
	}

	current := v.Value

	// Index accessors attached directly to the root segment.
	for _, idx := range segments[0].indexes {
		var ok bool
		current, ok = indexInto(current, idx)
		if !ok {
			return res
		}
	}

	for _, seg := range segments[1:] {
		var ok bool
		current, ok = propertyOf(current, seg.key)
		if !ok {
			return res
		}
		for _, idx := range seg.indexes {
			current, ok = indexInto(current, idx)
			if !ok {
				return res
			}
		}
	}

	res.Value = current
	res.ValidPath = true
	return res
}

// segment is one dot-delimited piece of a path: a key plus any trailing
// [n] index accessors.
type segment struct {
	key     string
	indexes []int
}

// splitPath parses "a.b[2].c" into segments. Malformed accessors yield no
// segments, which resolves as an invalid path rather than an error.
func splitPath(path string) []segment {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	parts := strings.Split(path, ".")
	segments := make([]segment, 0, len(parts))

	for _, part := range parts {
		key := part
		var indexes []int

		for {
			open := strings.Index(key, "[")
			if open == -1 {
				break
			}
			closing := strings.Index(key[open:], "]")
			if closing == -1 {
				return nil
			}
			idxStr := key[open+1 : open+closing]
			idx, err := strconv.Atoi(idxStr)
			if err != nil || idx < 0 {
				return nil
			}
			indexes = append(indexes, idx)
			key = key[:open] + key[open+closing+1:]
		}

		if key == "" && len(segments) == 0 {
			// A path cannot start with a bare index accessor.
			return nil
		}
		segments = append(segments, segment{key: key, indexes: indexes})
	}

	return segments
}

func propertyOf(value any, key string) (any, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := obj[key]
	return v, ok
}

func indexInto(value any, idx int) (any, bool) {
	arr, ok := value.([]any)
	if !ok || idx >= len(arr) {
		return nil, false
	}
	return arr[idx], true
}
