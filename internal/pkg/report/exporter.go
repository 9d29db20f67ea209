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

package report

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "objsetstat"

// Exporter exposes the rates of the most recent tick as Prometheus gauges.
type Exporter struct {
	desc *prometheus.Desc

	mu   sync.Mutex
	rows []Row
}

func NewExporter() *Exporter {
	return &Exporter{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "dataset", "rate"),
			"Per-second rate of a dataset kstat counter over the last polling interval.",
			[]string{"dataset", "counter"}, nil,
		),
	}
}

func (e *Exporter) Report(tick Tick) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows = tick.Sampled

	return nil
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.desc
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.mu.Lock()
	rows := e.rows
	e.mu.Unlock()

	for _, r := range rows {
		for _, k := range sortedKeys(r.Rates) {
			ch <- prometheus.MustNewConstMetric(e.desc, prometheus.GaugeValue, r.Rates[k], r.Dataset, k)
		}
	}
}
