// Copyright 2022 Metrika Inc.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package match resolves dataset selectors into name predicates.
//
// A selector starting with '~' is a regular expression searched anywhere
// in the name. Any other selector is a shell glob matched against the whole
// name, where '*' also matches the '/' separating dataset components.
// Braces have no special meaning.
package match

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// RegexpSigil marks a selector as a regular expression.
const RegexpSigil = "~"

// InvalidPatternError is returned when a selector cannot be compiled.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	if e.Pattern == "" {
		return "invalid pattern: empty pattern"
	}
	if e.Err == nil {
		return fmt.Sprintf("invalid pattern %q", e.Pattern)
	}

	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error {
	return e.Err
}

// Matcher reports whether a name is selected by a pattern.
type Matcher interface {
	IsMatch(name string) bool

	// String returns the pattern the matcher was built from.
	String() string
}

// New builds a Matcher for pattern.
func New(pattern string) (Matcher, error) {
	if pattern == "" {
		return nil, &InvalidPatternError{Pattern: pattern}
	}

	if strings.HasPrefix(pattern, RegexpSigil) {
		re, err := regexp.Compile(strings.TrimPrefix(pattern, RegexpSigil))
		if err != nil {
			return nil, &InvalidPatternError{Pattern: pattern, Err: err}
		}

		return &regexpMatcher{pattern: pattern, re: re}, nil
	}

	// no separators: '*' spans dataset components
	g, err := glob.Compile(shellGlob(pattern))
	if err != nil {
		return nil, &InvalidPatternError{Pattern: pattern, Err: err}
	}

	return &globMatcher{pattern: pattern, g: g}, nil
}

// shellGlob rewrites a shell glob into gobwas syntax. Braces are literal in
// a shell glob, and a ']' right after '[' or '[!' belongs to the class.
func shellGlob(pattern string) string {
	var b strings.Builder
	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\':
			b.WriteByte(c)
			if i+1 < len(pattern) {
				i++
				b.WriteByte(pattern[i])
			}

			continue
		case !inClass && c == '[':
			inClass = true
			b.WriteByte(c)
			if i+1 < len(pattern) && pattern[i+1] == '!' {
				i++
				b.WriteByte('!')
			}
			if i+1 < len(pattern) && pattern[i+1] == ']' {
				i++
				b.WriteString(`\]`)
			}

			continue
		case inClass && c == ']':
			inClass = false
		case !inClass && (c == '{' || c == '}'):
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}

	return b.String()
}

// MustNew is like New but panics on an invalid pattern.
func MustNew(pattern string) Matcher {
	m, err := New(pattern)
	if err != nil {
		panic(err)
	}

	return m
}

type globMatcher struct {
	pattern string
	g       glob.Glob
}

func (m *globMatcher) IsMatch(name string) bool {
	return m.g.Match(name)
}

func (m *globMatcher) String() string {
	return m.pattern
}

type regexpMatcher struct {
	pattern string
	re      *regexp.Regexp
}

func (m *regexpMatcher) IsMatch(name string) bool {
	return m.re.MatchString(name)
}

func (m *regexpMatcher) String() string {
	return m.pattern
}
