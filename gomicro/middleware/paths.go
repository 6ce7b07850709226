package middleware

import (
	"path"
	"strings"
)

// PathMatcher decides whether a request path is on the allow-list of paths
// that need no token. Patterns are exact paths or globs where "*" matches
// within one segment and "**" matches any remaining segments.
type PathMatcher struct {
	exact    map[string]struct{}
	patterns [][]string
}

// NewPathMatcher compiles the allow-list.
func NewPathMatcher(patterns []string) *PathMatcher {
	m := &PathMatcher{exact: make(map[string]struct{})}
	for _, p := range patterns {
		p = normalize(p)
		if strings.ContainsAny(p, "*?[") {
			m.patterns = append(m.patterns, segments(p))
			continue
		}
		m.exact[p] = struct{}{}
	}
	return m
}

// Match reports whether p is excluded.
func (m *PathMatcher) Match(p string) bool {
	if m == nil {
		return false
	}
	p = normalize(p)
	if _, ok := m.exact[p]; ok {
		return true
	}
	segs := segments(p)
	for _, pattern := range m.patterns {
		if matchSegments(pattern, segs) {
			return true
		}
	}
	return false
}

func normalize(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

func segments(p string) []string {
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

func matchSegments(pattern, segs []string) bool {
	for i, seg := range pattern {
		if seg == "**" {
			return true
		}
		if i >= len(segs) {
			return false
		}
		if ok, err := path.Match(seg, segs[i]); err != nil || !ok {
			return false
		}
	}
	return len(pattern) == len(segs)
}
