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

// Package poll drives the sample-and-report loop over the monitored datasets.
package poll

import (
	"context"
	"time"

	"objsetstat/internal/pkg/report"
	"objsetstat/pkg/kstat"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type PollerConf struct {
	// Interval between two polling rounds
	Interval time.Duration

	// Count of rounds to run, 0 runs until the context is done
	Count int

	// Clock stamps ticks handed to reporters
	Clock kstat.Clock
}

// Poller refreshes datasets in monitored order and reports their rates.
// It runs on a single goroutine.
type Poller struct {
	PollerConf

	Entities  []*kstat.Snapshot
	Reporters []report.Reporter
}

func NewPoller(conf PollerConf, entities []*kstat.Snapshot, reporters ...report.Reporter) *Poller {
	p := &Poller{PollerConf: conf, Entities: entities, Reporters: reporters}
	if p.Interval < 1 {
		zap.S().Debug("Using default interval of one second since none was provided.")
		p.Interval = time.Second
	}
	if p.Clock == nil {
		p.Clock = kstat.SystemClock
	}
	MonitoredDatasets.Set(float64(len(entities)))

	return p
}

// Run polls until Count rounds completed or ctx is done. Only reporter
// failures end it with an error.
func (p *Poller) Run(ctx context.Context) error {
	log := zap.S()

	for n := 0; p.Count == 0 || n < p.Count; n++ {
		select {
		case <-time.After(p.Interval):
		case <-ctx.Done():
			log.Debugw("polling stopped", "rounds", n)

			return nil
		}

		tick := p.Tick()
		log.Debugw("poll tick", "sampled", len(tick.Sampled), "active", len(tick.Rows))

		for _, r := range p.Reporters {
			if err := r.Report(tick); err != nil {
				return errors.Wrapf(err, "%T", r)
			}
		}
	}

	return nil
}

// Tick refreshes every entity once and collects their rates.
func (p *Poller) Tick() report.Tick {
	begin := time.Now()
	defer func() { PollDuration.Observe(time.Since(begin).Seconds()) }()

	tick := report.Tick{}
	for _, e := range p.Entities {
		if !e.Refresh() {
			RefreshFailures.WithLabelValues(e.Name()).Inc()
			zap.S().Debugw("dataset refresh failed", "dataset", e.Name(), "source", e.Source().String())

			continue
		}

		rates, ok := e.Rates()
		if !ok {
			continue
		}
		row := report.Row{Dataset: e.Name(), Rates: rates}
		tick.Sampled = append(tick.Sampled, row)
		if report.Active(rates) {
			tick.Rows = append(tick.Rows, row)
		}
	}
	tick.At = p.Clock.Now()

	return tick
}
