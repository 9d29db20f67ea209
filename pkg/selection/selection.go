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

// Package selection narrows a discovered set of datasets with an ordered
// list of directives:
//
//	*          select everything, discarding earlier directives
//	+pattern   add matching datasets not yet selected
//	-pattern   drop matching datasets
//
// Patterns follow package match: "~regexp" or a shell glob.
package selection

import (
	"fmt"

	"objsetstat/pkg/match"
)

// Op is the kind of a Directive.
type Op int

const (
	OpAll Op = iota
	OpAdd
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpAll:
		return "all"
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	}

	return fmt.Sprintf("Op(%d)", int(o))
}

const (
	allDirective = "*"
	addSigil     = '+'
	removeSigil  = '-'
)

// InvalidDirectiveError is returned for a directive that cannot be parsed.
// Err holds the underlying *match.InvalidPatternError when the pattern
// itself is at fault.
type InvalidDirectiveError struct {
	Directive string
	Err       error
}

func (e *InvalidDirectiveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid directive %q: %v", e.Directive, e.Err)
	}

	return fmt.Sprintf("invalid directive %q: expected %q, +pattern or -pattern", e.Directive, allDirective)
}

func (e *InvalidDirectiveError) Unwrap() error {
	return e.Err
}

// Directive is a parsed selection instruction.
type Directive struct {
	Op      Op
	Raw     string
	Matcher match.Matcher
}

// ParseDirective parses a single directive string.
func ParseDirective(s string) (Directive, error) {
	if s == allDirective {
		return Directive{Op: OpAll, Raw: s}, nil
	}
	if len(s) < 2 {
		return Directive{}, &InvalidDirectiveError{Directive: s}
	}

	var op Op
	switch s[0] {
	case addSigil:
		op = OpAdd
	case removeSigil:
		op = OpRemove
	default:
		return Directive{}, &InvalidDirectiveError{Directive: s}
	}

	m, err := match.New(s[1:])
	if err != nil {
		return Directive{}, &InvalidDirectiveError{Directive: s, Err: err}
	}

	return Directive{Op: op, Raw: s, Matcher: m}, nil
}

// ParseDirectives parses every directive, failing on the first invalid one.
func ParseDirectives(raw []string) ([]Directive, error) {
	out := make([]Directive, 0, len(raw))
	for _, s := range raw {
		d, err := ParseDirective(s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	return out, nil
}

// Apply returns the result of applying d to running. The returned slice is
// always newly allocated.
func Apply[E Named](d Directive, universe, running []E) []E {
	switch d.Op {
	case OpAll:
		return append([]E(nil), universe...)

	case OpAdd:
		out := append(make([]E, 0, len(running)), running...)
		for _, e := range universe {
			if d.Matcher.IsMatch(e.Name()) && !Contains(out, e.Name()) {
				out = append(out, e)
			}
		}

		return out

	case OpRemove:
		out := make([]E, 0, len(running))
		for _, e := range running {
			if !d.Matcher.IsMatch(e.Name()) {
				out = append(out, e)
			}
		}

		return out
	}

	return append([]E(nil), running...)
}

// Select applies directives left to right over universe. Without directives
// the whole universe is selected. An empty result is not an error.
func Select[E Named](universe []E, raw []string) ([]E, error) {
	directives, err := ParseDirectives(raw)
	if err != nil {
		return nil, err
	}

	return SelectParsed(universe, directives), nil
}

// SelectParsed is Select over already parsed directives.
func SelectParsed[E Named](universe []E, directives []Directive) []E {
	if len(directives) == 0 {
		return append(make([]E, 0, len(universe)), universe...)
	}

	running := []E{}
	for _, d := range directives {
		running = Apply(d, universe, running)
	}

	return running
}
