package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouterMatch(t *testing.T) {
	r := NewRouter[string]()
	r.Handle("/", "root")
	r.Handle("/static/*", "static")
	r.Handle("/static/img/*", "img")
	r.Handle("/v?/users", "users?")
	r.Handle("/v*/users", "users*")
	r.Handle("/exact", "exact")
	r.Handle("/exa*", "exa")

	testcases := []struct {
		target string
		want   string
		found  bool
	}{
		{target: "/", want: "root", found: true},
		{target: "/?q=1", want: "root", found: true},
		{target: "/exact", want: "exact", found: true},
		{target: "/exactly", want: "exa", found: true},
		{target: "/static/app.js", want: "static", found: true},
		{target: "/static/img/a/b.png", want: "img", found: true},
		{target: "/static/img/a.png?size=2", want: "img", found: true},
		{target: "/v1/users", want: "users?", found: true},
		{target: "/v12/users", want: "users*", found: true},
		{target: "/nothing", found: false},
		{target: "", found: false},
	}
	for _, tc := range testcases {
		t.Run(tc.target, func(t *testing.T) {
			got, ok := r.Match(tc.target)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRouterPrefersQuestionMark(t *testing.T) {
	for _, order := range [][]string{{"/a*", "/a?*"}, {"/a?*", "/a*"}} {
		r := NewRouter[string]()
		for _, pattern := range order {
			r.Handle(pattern, pattern)
		}

		got, ok := r.Match("/abc")
		assert.True(t, ok)
		assert.Equal(t, "/a?*", got)

		// '?' needs one byte after "/a".
		got, ok = r.Match("/a")
		assert.True(t, ok)
		assert.Equal(t, "/a*", got)
	}
}

func TestRouterReplace(t *testing.T) {
	r := NewRouter[int]()
	r.Handle("/a", 1)
	r.Handle("/a", 2)
	r.Handle("/b/*", 1)
	r.Handle("/b/*", 2)

	got, _ := r.Match("/a")
	assert.Equal(t, 2, got)
	got, _ = r.Match("/b/c")
	assert.Equal(t, 2, got)
}

func TestMatchWildcard(t *testing.T) {
	testcases := []struct {
		pattern, s string
		want       bool
	}{
		{"*", "", true},
		{"*", "/anything/at/all", true},
		{"/a*c", "/abbbc", true},
		{"/a*c", "/abbbd", false},
		{"/a?c", "/abc", true},
		{"/a?c", "/ac", false},
		{"/*/x/*", "/1/2/x/3", true},
		{"/*.js", "/a.json", false},
		{"/**", "/a", true},
	}
	for _, tc := range testcases {
		assert.Equal(t, tc.want, matchWildcard(tc.pattern, tc.s), "%s ~ %s", tc.pattern, tc.s)
	}
}
