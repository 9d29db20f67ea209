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

// Package report renders per-tick dataset rates.
package report

import (
	"sort"
	"time"

	"objsetstat/pkg/kstat"
)

// Tracked lists the rates that decide whether a dataset was active.
var Tracked = []string{kstat.NWritten, kstat.NRead, kstat.NUnlinked}

// Row holds the rates of one dataset for one tick.
type Row struct {
	Dataset string
	Rates   map[string]float64
}

// Tick is everything observed in one polling round.
type Tick struct {
	At time.Time

	// Rows are the active datasets, in monitored order.
	Rows []Row

	// Sampled holds every dataset that produced rates this tick, active or not.
	Sampled []Row
}

// Reporter consumes ticks.
type Reporter interface {
	Report(Tick) error
}

// Active reports whether any tracked rate is above zero.
func Active(rates map[string]float64) bool {
	for _, k := range Tracked {
		if rates[k] > 0 {
			return true
		}
	}

	return false
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
