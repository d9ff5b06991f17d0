// SPDX-License-Identifier: AGPL-3.0-or-later

// Package repofilter selects repositories by name with doublestar globs.
package repofilter

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter keeps names matching any include pattern and no exclude pattern.
// An empty include list keeps everything.
type Filter struct {
	include []string
	exclude []string
}

// New validates the patterns and returns a filter.
func New(include, exclude []string) (*Filter, error) {
	f := &Filter{include: normalizePatterns(include), exclude: normalizePatterns(exclude)}
	for _, p := range append(append([]string{}, f.include...), f.exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid repository pattern %q", p)
		}
	}
	return f, nil
}

// Match reports whether name passes the filter. Exclusion wins over inclusion.
func (f *Filter) Match(name string) bool {
	if matchesAny(f.exclude, name) {
		return false
	}
	return len(f.include) == 0 || matchesAny(f.include, name)
}

// Select returns the items whose name passes the filter, preserving order.
func Select[T any](f *Filter, items []T, name func(T) string) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if f.Match(name(it)) {
			out = append(out, it)
		}
	}
	return out
}

func normalizePatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
