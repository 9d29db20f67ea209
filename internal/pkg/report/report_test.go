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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"objsetstat/pkg/kstat"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func testTick() Tick {
	rows := []Row{
		{Dataset: "tank/home", Rates: map[string]float64{kstat.NWritten: 1536, kstat.NRead: 0, kstat.NUnlinked: 2}},
		{Dataset: "tank", Rates: map[string]float64{kstat.NWritten: 0, kstat.NRead: 4096, kstat.NUnlinked: 0}},
	}

	return Tick{
		At:   time.Date(2022, 5, 1, 12, 0, 0, 0, time.UTC),
		Rows: rows,
		Sampled: append([]Row{
			{Dataset: "tank/idle", Rates: map[string]float64{kstat.NWritten: 0}},
		}, rows...),
	}
}

func TestActive(t *testing.T) {
	tests := []struct {
		name  string
		rates map[string]float64
		exp   bool
	}{
		{"empty", nil, false},
		{"all zero", map[string]float64{kstat.NWritten: 0, kstat.NRead: 0, kstat.NUnlinked: 0}, false},
		{"untracked only", map[string]float64{kstat.Writes: 10, kstat.Reads: 3}, false},
		{"negative", map[string]float64{kstat.NWritten: -5}, false},
		{"written", map[string]float64{kstat.NWritten: 0.5}, true},
		{"unlinked", map[string]float64{kstat.NUnlinked: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.exp, Active(tt.rates))
		})
	}
}

func TestTable(t *testing.T) {
	buf := &bytes.Buffer{}
	tbl := NewTable(buf, false, 0)
	require.False(t, tbl.Color)

	require.NoError(t, tbl.Report(testTick()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, []string{"dataset", "write/s", "read/s", "unlink/s"}, strings.Fields(lines[0]))
	require.Equal(t, []string{"tank/home", "1.5KiB", "0B", "2.0"}, strings.Fields(lines[1]))
	require.Equal(t, []string{"tank", "0B", "4KiB", "0.0"}, strings.Fields(lines[2]))
}

func TestTable_Exact(t *testing.T) {
	buf := &bytes.Buffer{}
	tbl := NewTable(buf, true, 0)

	require.NoError(t, tbl.Report(testTick()))
	require.Contains(t, buf.String(), "1536")
	require.Contains(t, buf.String(), "4096")
}

func TestTable_HeaderSuppression(t *testing.T) {
	countHeaders := func(s string) int {
		return strings.Count(s, "unlink/s")
	}

	t.Run("idle ticks print nothing", func(t *testing.T) {
		buf := &bytes.Buffer{}
		tbl := NewTable(buf, false, 0)
		require.NoError(t, tbl.Report(Tick{}))
		require.Empty(t, buf.String())
	})

	t.Run("header every active tick", func(t *testing.T) {
		buf := &bytes.Buffer{}
		tbl := NewTable(buf, false, 0)
		for i := 0; i < 3; i++ {
			require.NoError(t, tbl.Report(testTick()))
			require.NoError(t, tbl.Report(Tick{}))
		}
		require.Equal(t, 3, countHeaders(buf.String()))
	})

	t.Run("header every n ticks", func(t *testing.T) {
		buf := &bytes.Buffer{}
		tbl := NewTable(buf, false, 2)
		for i := 0; i < 5; i++ {
			require.NoError(t, tbl.Report(testTick()))
		}
		require.Equal(t, 3, countHeaders(buf.String()))
	})
}

func TestJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	j := NewJSON(buf)

	require.NoError(t, j.Report(Tick{}))
	require.Empty(t, buf.String())

	require.NoError(t, j.Report(testTick()))
	require.JSONEq(t, `{
		"time": "2022-05-01T12:00:00Z",
		"datasets": [
			{"dataset": "tank/home", "rates": {"nwritten": 1536, "nread": 0, "nunlinked": 2}},
			{"dataset": "tank", "rates": {"nwritten": 0, "nread": 4096, "nunlinked": 0}}
		]
	}`, buf.String())
}

func gatherRates(t *testing.T, g prometheus.Gatherer) map[string]float64 {
	t.Helper()
	mfs, err := g.Gather()
	require.NoError(t, err)

	out := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != "objsetstat_dataset_rate" {
			continue
		}
		require.Equal(t, dto.MetricType_GAUGE, mf.GetType())
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			out[labels["dataset"]+":"+labels["counter"]] = m.GetGauge().GetValue()
		}
	}

	return out
}

func TestExporter(t *testing.T) {
	e := NewExporter()
	reg := prometheus.NewRegistry()
	reg.MustRegister(e)

	require.Empty(t, gatherRates(t, reg))

	require.NoError(t, e.Report(testTick()))
	rates := gatherRates(t, reg)
	require.Len(t, rates, 7)
	require.Equal(t, 1536.0, rates["tank/home:nwritten"])
	require.Equal(t, 4096.0, rates["tank:nread"])
	require.Equal(t, 0.0, rates["tank/idle:nwritten"])

	require.NoError(t, e.Report(Tick{}))
	require.Empty(t, gatherRates(t, reg))
}

func TestTextfile(t *testing.T) {
	e := NewExporter()
	reg := prometheus.NewRegistry()
	reg.MustRegister(e)
	require.NoError(t, e.Report(testTick()))

	path := filepath.Join(t.TempDir(), "objsetstat.prom")
	tf := &Textfile{Path: path, Gatherer: reg}
	require.NoError(t, tf.Report(testTick()))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), "# TYPE objsetstat_dataset_rate gauge")
	require.Contains(t, string(content), `objsetstat_dataset_rate{counter="nwritten",dataset="tank/home"} 1536`)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	bad := &Textfile{Path: filepath.Join(t.TempDir(), "missing", "x.prom"), Gatherer: reg}
	require.Error(t, bad.Report(Tick{}))
}
