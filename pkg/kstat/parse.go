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

package kstat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNoCounters indicates a read produced no usable counters.
	ErrNoCounters = errors.New("no counters found")

	// ErrMalformed indicates a counter line could not be parsed.
	ErrMalformed = errors.New("malformed counter line")
)

// Record is the parsed content of a single objset kstat read.
type Record struct {
	Name     string
	Counters map[string]uint64
}

// Parse extracts the dataset identity and counters from kstat lines.
//
// Lines are "<key> <type> <value>". Only keys starting with a lowercase
// ASCII letter and declared with the uint64 type are counters. The kstat
// header lines and non-numeric fields are skipped. A truncated or overlong
// counter line, or a counter whose value does not parse, invalidates the
// whole read.
func Parse(lines []string) (Record, error) {
	rec := Record{Counters: map[string]uint64{}}

	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if fields[0] == KeyDatasetName {
			if len(fields) >= 3 {
				rec.Name = strings.Join(fields[2:], " ")
			}

			continue
		}

		if !isCounterKey(fields[0]) {
			continue
		}
		if len(fields) < 3 || (fields[1] == TypeUint64 && len(fields) != 3) {
			return Record{}, fmt.Errorf("%w: line %d %q: expected 3 fields, got %d", ErrMalformed, i+1, line, len(fields))
		}
		if fields[1] != TypeUint64 {
			continue
		}

		v, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("%w: line %d %q: %v", ErrMalformed, i+1, line, err)
		}
		rec.Counters[fields[0]] = v
	}

	if len(rec.Counters) == 0 {
		return Record{}, ErrNoCounters
	}

	return rec, nil
}

func isCounterKey(key string) bool {
	return key[0] >= 'a' && key[0] <= 'z'
}
