package formdata

import (
	"fmt"
	"net/http"
	"path"
	"regexp"
	"strings"
)

// PathMatcher decides which request paths are ingested automatically in
// stream mode.
//
// Pattern syntax:
//
//	regexp:<expr>  or  ^<expr>   regular expression on the path
//	/api/*.json                  glob (path.Match) when it holds * ? or [
//	/upload                      the path itself or anything below it
type PathMatcher struct {
	match []func(string) bool
	fn    func(*http.Request) bool
}

// NewPathMatcher compiles patterns. fn may be nil.
func NewPathMatcher(patterns []string, fn func(*http.Request) bool) (*PathMatcher, error) {
	m := &PathMatcher{fn: fn}
	for _, p := range patterns {
		match, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		m.match = append(m.match, match)
	}
	return m, nil
}

func compilePattern(p string) (func(string) bool, error) {
	switch {
	case p == "":
		return nil, fmt.Errorf("empty fileModeMatch pattern")
	case strings.HasPrefix(p, "regexp:") || strings.HasPrefix(p, "^"):
		re, err := regexp.Compile(strings.TrimPrefix(p, "regexp:"))
		if err != nil {
			return nil, fmt.Errorf("invalid fileModeMatch pattern %q: %w", p, err)
		}
		return re.MatchString, nil
	case strings.ContainsAny(p, "*?["):
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid fileModeMatch pattern %q: %w", p, err)
		}
		return func(s string) bool {
			ok, _ := path.Match(p, s)
			return ok
		}, nil
	default:
		prefix := strings.TrimSuffix(p, "/")
		return func(s string) bool {
			return s == p || s == prefix || strings.HasPrefix(s, prefix+"/")
		}, nil
	}
}

// Empty reports whether the matcher has nothing to match with.
func (m *PathMatcher) Empty() bool { return len(m.match) == 0 && m.fn == nil }

// Match reports whether r should be ingested.
func (m *PathMatcher) Match(r *http.Request) bool {
	for _, match := range m.match {
		if match(r.URL.Path) {
			return true
		}
	}
	return m.fn != nil && m.fn(r)
}
