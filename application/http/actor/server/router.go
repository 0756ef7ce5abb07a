package server

import (
	"strings"
	"sync"
)

// Router maps request targets to handlers.
//
// A pattern without wildcards matches the path exactly. In a wildcard
// pattern '*' matches any run of bytes, '/' included, and '?' matches one
// byte. Exact patterns win; among wildcard patterns the one with the most
// literal bytes wins, then one containing '?', then the one with fewer '*'.
type Router[H any] struct {
	mu       sync.RWMutex
	exact    map[string]H
	wildcard []wildcardRoute[H]
}

type wildcardRoute[H any] struct {
	pattern  string
	literals int
	question bool
	stars    int
	handler  H
}

func (w *wildcardRoute[H]) beats(other *wildcardRoute[H]) bool {
	if w.literals != other.literals {
		return w.literals > other.literals
	}
	if w.question != other.question {
		return w.question
	}
	return w.stars < other.stars
}

func NewRouter[H any]() *Router[H] {
	return &Router[H]{exact: make(map[string]H)}
}

// Handle registers h for pattern, replacing any previous handler.
func (r *Router[H]) Handle(pattern string, h H) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !strings.ContainsAny(pattern, "*?") {
		r.exact[pattern] = h
		return
	}

	route := wildcardRoute[H]{
		pattern:  pattern,
		literals: len(pattern) - strings.Count(pattern, "*") - strings.Count(pattern, "?"),
		question: strings.Contains(pattern, "?"),
		stars:    strings.Count(pattern, "*"),
		handler:  h,
	}
	for i := range r.wildcard {
		if r.wildcard[i].pattern == pattern {
			r.wildcard[i] = route
			return
		}
	}
	r.wildcard = append(r.wildcard, route)
}

// Match finds the handler for target. The query string is ignored.
func (r *Router[H]) Match(target string) (H, bool) {
	path, _, _ := strings.Cut(target, "?")

	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.exact[path]; ok {
		return h, true
	}

	var best *wildcardRoute[H]
	for i := range r.wildcard {
		route := &r.wildcard[i]
		if !matchWildcard(route.pattern, path) {
			continue
		}
		if best == nil || route.beats(best) {
			best = route
		}
	}

	if best == nil {
		var zero H
		return zero, false
	}
	return best.handler, true
}

func matchWildcard(pattern, s string) bool {
	// Position to resume from after the last '*'.
	star, resume := -1, 0

	p, i := 0, 0
	for i < len(s) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == s[i]):
			p++
			i++
		case p < len(pattern) && pattern[p] == '*':
			star, resume = p, i
			p++
		case star >= 0:
			resume++
			p, i = star+1, resume
		default:
			return false
		}
	}

	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
