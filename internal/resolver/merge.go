// SPDX-License-Identifier: AGPL-3.0-or-later

package resolver

import (
	"sort"
	"strings"
)

// Inherit is the sentinel value that forces a key to take its ancestor's value.
const Inherit = "inherit"

func isInherit(v any) bool {
	s, ok := v.(string)
	return ok && s == Inherit
}

// mergeLayer folds src (more specific) into dst (the merged ancestors) in place.
// It returns the dotted paths of inherit sentinels that had no ancestor value.
func mergeLayer(dst map[string]any, src map[string]any, prov map[string]string, layer string) []string {
	return mergeObject(dst, src, "", func(key string) {
		if prov != nil {
			prov[key] = layer
		}
	})
}

func mergeObject(dst, src map[string]any, prefix string, touched func(string)) []string {
	var unresolved []string
	for _, k := range sortedKeys(src) {
		v := src[k]
		p := joinPath(prefix, k)

		if isInherit(v) {
			if _, ok := dst[k]; !ok {
				unresolved = append(unresolved, p)
			}
			continue
		}
		if v == nil {
			if _, ok := dst[k]; ok {
				delete(dst, k)
				touch(touched, prefix, k)
			}
			continue
		}

		srcObj, srcIsObj := v.(map[string]any)
		dstObj, dstIsObj := dst[k].(map[string]any)
		if srcIsObj && dstIsObj {
			unresolved = append(unresolved, mergeObject(dstObj, srcObj, p, nil)...)
			touch(touched, prefix, k)
			continue
		}

		clean, missing := stripInherit(deepCopy(v), p)
		unresolved = append(unresolved, missing...)
		dst[k] = clean
		touch(touched, prefix, k)
	}
	return unresolved
}

// touch records provenance for top-level keys only.
func touch(touched func(string), prefix, key string) {
	if touched != nil && prefix == "" {
		touched(key)
	}
}

// stripInherit removes inherit sentinels from a value that has no ancestor to inherit from.
func stripInherit(v any, p string) (any, []string) {
	obj, ok := v.(map[string]any)
	if !ok {
		return v, nil
	}
	var missing []string
	for _, k := range sortedKeys(obj) {
		child := joinPath(p, k)
		if isInherit(obj[k]) {
			delete(obj, k)
			missing = append(missing, child)
			continue
		}
		if obj[k] == nil {
			delete(obj, k)
			continue
		}
		cleaned, m := stripInherit(obj[k], child)
		obj[k] = cleaned
		missing = append(missing, m...)
	}
	return obj, missing
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.Join([]string{prefix, key}, ".")
}
