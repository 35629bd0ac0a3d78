// Package matcher matches candidate names against glob or regex patterns.
//
// Provider names are domains, so globs like "*.googleapis.com" are the common
// case. A pattern anchored with ^ or $ is treated as a regular expression.
package matcher

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// PatternType represents the type of pattern matching to use.
type PatternType int

const (
	// Glob uses shell-style glob patterns (*, ?, []).
	Glob PatternType = iota
	// Regex uses regular expressions.
	Regex
	// Auto detects the pattern type.
	Auto
)

// String returns the pattern type name.
func (t PatternType) String() string {
	switch t {
	case Glob:
		return "glob"
	case Regex:
		return "regex"
	default:
		return "auto"
	}
}

// Matcher reports whether names match a compiled pattern.
type Matcher interface {
	// Match checks if the input matches the pattern
	Match(input string) bool
	// Pattern returns the original pattern string
	Pattern() string
	// Type returns the pattern type being used
	Type() PatternType
}

type matcher struct {
	pattern     string
	glob        string
	patternType PatternType
	compiled    *regexp.Regexp
	lower       bool
}

// Options configures the matcher behavior.
type Options struct {
	// CaseInsensitive makes matching case-insensitive
	CaseInsensitive bool
}

// New compiles pattern. Auto picks Regex for patterns anchored with ^ or $
// and Glob otherwise; a pattern without metacharacters is an exact match.
func New(patternType PatternType, pattern string, opts ...Options) (Matcher, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	m := &matcher{pattern: pattern, patternType: patternType, lower: o.CaseInsensitive}
	if patternType == Auto {
		m.patternType = detect(pattern)
	}

	switch m.patternType {
	case Glob:
		m.glob = pattern
		if o.CaseInsensitive {
			m.glob = strings.ToLower(pattern)
		}
		if _, err := path.Match(m.glob, ""); err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}
	case Regex:
		expr := pattern
		if o.CaseInsensitive && !strings.HasPrefix(expr, "(?i)") {
			expr = "(?i)" + expr
		}
		compiled, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
		}
		m.compiled = compiled
	default:
		return nil, fmt.Errorf("unsupported pattern type: %v", patternType)
	}
	return m, nil
}

// MustNew is New that panics on an invalid pattern.
func MustNew(patternType PatternType, pattern string, opts ...Options) Matcher {
	m, err := New(patternType, pattern, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func detect(pattern string) PatternType {
	if strings.HasPrefix(pattern, "^") || strings.HasSuffix(pattern, "$") {
		return Regex
	}
	return Glob
}

// Match checks if the input matches the pattern.
func (m *matcher) Match(input string) bool {
	if m.patternType == Regex {
		return m.compiled.MatchString(input)
	}
	if m.lower {
		input = strings.ToLower(input)
	}
	ok, _ := path.Match(m.glob, input)
	return ok
}

// Pattern returns the original pattern string.
func (m *matcher) Pattern() string {
	return m.pattern
}

// Type returns the resolved pattern type.
func (m *matcher) Type() PatternType {
	return m.patternType
}
