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

package poll

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1}

	// PollDuration ...
	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "objsetstat_poll_duration_seconds",
		Help:    "Histogram of the time spent refreshing every monitored dataset in seconds",
		Buckets: buckets,
	})

	// RefreshFailures ...
	RefreshFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "objsetstat_refresh_failures_total",
		Help: "The total number of failed dataset kstat reads",
	}, []string{"dataset"})

	// MonitoredDatasets ...
	MonitoredDatasets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "objsetstat_monitored_datasets", Help: "The number of monitored datasets",
	})
)
