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
	"time"

	"go.uber.org/zap"
)

// Clock supplies capture instants.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the default capture clock.
var SystemClock Clock = systemClock{}

type generation struct {
	counters map[string]uint64
	at       time.Time
}

// Snapshot keeps the two most recent successful reads of a single objset.
// It is not safe for concurrent use.
type Snapshot struct {
	src   Source
	clock Clock

	name       string
	identified bool
	prev, cur  *generation
}

// Option configures a Snapshot.
type Option func(*Snapshot)

// WithClock overrides the clock used to stamp reads.
func WithClock(c Clock) Option {
	return func(s *Snapshot) {
		s.clock = c
	}
}

// NewSnapshot creates a Snapshot and performs its first read. A failed
// first read leaves the snapshot empty; Ready reports whether it holds data.
func NewSnapshot(src Source, opts ...Option) *Snapshot {
	s := &Snapshot{src: src, clock: SystemClock}
	for _, opt := range opts {
		opt(s)
	}
	s.Refresh()

	return s
}

// Name returns the dataset name observed on the first successful read,
// which may be empty if that read carried none.
func (s *Snapshot) Name() string {
	return s.name
}

// Source returns the snapshot's counter source.
func (s *Snapshot) Source() Source {
	return s.src
}

// Ready reports whether at least one read succeeded.
func (s *Snapshot) Ready() bool {
	return s.cur != nil
}

// Counters returns a copy of the most recent counters, or nil.
func (s *Snapshot) Counters() map[string]uint64 {
	if s.cur == nil {
		return nil
	}
	out := make(map[string]uint64, len(s.cur.counters))
	for k, v := range s.cur.counters {
		out[k] = v
	}

	return out
}

// Refresh reads the source again. On success the current read becomes the
// previous one. On failure the snapshot is left untouched and false is
// returned.
func (s *Snapshot) Refresh() bool {
	lines, err := s.src.ReadLines()
	if err != nil {
		zap.S().Debugw("kstat read failed", "source", s.src.String(), zap.Error(err))

		return false
	}

	rec, err := Parse(lines)
	if err != nil {
		zap.S().Debugw("kstat parse failed", "source", s.src.String(), zap.Error(err))

		return false
	}

	if !s.identified {
		s.name, s.identified = rec.Name, true
	}
	s.prev, s.cur = s.cur, &generation{counters: rec.Counters, at: s.clock.Now()}

	return true
}

// Elapsed returns the time between the previous and current reads.
func (s *Snapshot) Elapsed() (time.Duration, bool) {
	if s.prev == nil || s.cur == nil {
		return 0, false
	}

	return s.cur.at.Sub(s.prev.at), true
}

// Rates returns the per-second change of every counter present in both of
// the last two reads. It returns false before the second successful read or
// when the reads are not strictly ordered in time. Decreasing counters yield
// negative rates.
func (s *Snapshot) Rates() (map[string]float64, bool) {
	elapsed, ok := s.Elapsed()
	if !ok || elapsed <= 0 {
		return nil, false
	}

	secs := elapsed.Seconds()
	rates := make(map[string]float64, len(s.cur.counters))
	for k, cur := range s.cur.counters {
		prev, ok := s.prev.counters[k]
		if !ok {
			continue
		}
		rates[k] = (float64(cur) - float64(prev)) / secs
	}

	return rates, true
}
