package router

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// endOfPath is the stop character of a variable that closes the pattern.
const endOfPath rune = 0

var ErrInvalidPattern = errors.New("invalid route pattern")

type segment struct {
	literal  string
	variable string
	stop     rune
}

func (s segment) isVariable() bool {
	return s.variable != ""
}

// PathMatcher is a compiled route pattern. Literal text matches verbatim and
// {name} captures up to the character that follows it in the pattern, or to
// the end of the path when nothing follows.
type PathMatcher struct {
	segments []segment
	vars     int
}

// Compile parses pattern. Adjacent literal text is coalesced, and the
// character right after a closing brace is the variable's stop character
// rather than literal text.
func Compile(pattern string) (*PathMatcher, error) {
	m := &PathMatcher{}

	var tmp strings.Builder
	inVar, varEnd := false, false

	pushVar := func(stop rune) error {
		if tmp.Len() == 0 {
			return fmt.Errorf("%w: empty variable name in %q", ErrInvalidPattern, pattern)
		}
		m.segments = append(m.segments, segment{variable: tmp.String(), stop: stop})
		m.vars++
		tmp.Reset()
		return nil
	}

	for _, ch := range pattern {
		switch {
		case inVar:
			if ch == '}' {
				inVar, varEnd = false, true
			} else {
				tmp.WriteRune(ch)
			}

		case ch == '{':
			if varEnd {
				return nil, fmt.Errorf("%w: adjacent variables in %q", ErrInvalidPattern, pattern)
			}
			if tmp.Len() > 0 {
				m.segments = append(m.segments, segment{literal: tmp.String()})
				tmp.Reset()
			}
			inVar = true

		case varEnd:
			if err := pushVar(ch); err != nil {
				return nil, err
			}
			varEnd = false

		default:
			tmp.WriteRune(ch)
		}
	}

	switch {
	case inVar:
		return nil, fmt.Errorf("%w: unterminated variable in %q", ErrInvalidPattern, pattern)
	case varEnd:
		if err := pushVar(endOfPath); err != nil {
			return nil, err
		}
	case tmp.Len() > 0:
		m.segments = append(m.segments, segment{literal: tmp.String()})
	}

	return m, nil
}

// MustCompile is Compile that panics on a malformed pattern.
func MustCompile(pattern string) *PathMatcher {
	m, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// Exec matches path and returns the captured variables. Variables may
// capture the empty string. A match must consume the whole path.
func (m *PathMatcher) Exec(path string) (map[string]string, bool) {
	var params map[string]string
	if m.vars > 0 {
		params = make(map[string]string, m.vars)
	}

	offset := 0
	for _, seg := range m.segments {
		if offset > len(path) {
			return nil, false
		}

		if !seg.isVariable() {
			if !strings.HasPrefix(path[offset:], seg.literal) {
				return nil, false
			}
			offset += len(seg.literal)
			continue
		}

		rest := path[offset:]
		end, skip := len(rest), 0
		if seg.stop != endOfPath {
			if i := strings.IndexRune(rest, seg.stop); i >= 0 {
				end = i
			}
			// a missing stop character still counts as consumed, so any
			// segment after it cannot match
			skip = utf8.RuneLen(seg.stop)
		}

		params[seg.variable] = rest[:end]
		offset += end + skip
	}

	if offset < len(path) {
		return nil, false
	}
	return params, true
}

// Variables lists the variable names in pattern order.
func (m *PathMatcher) Variables() []string {
	names := make([]string, 0, m.vars)
	for _, seg := range m.segments {
		if seg.isVariable() {
			names = append(names, seg.variable)
		}
	}
	return names
}
