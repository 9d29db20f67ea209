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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"objsetstat/internal/pkg/report"
	"objsetstat/pkg/kstat"

	"github.com/stretchr/testify/require"
)

type stepClock struct {
	t time.Time
}

// Now advances one second on every call.
func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)

	return c.t
}

type recorder struct {
	ticks []report.Tick
	err   error
}

func (r *recorder) Report(t report.Tick) error {
	r.ticks = append(r.ticks, t)

	return r.err
}

func writeObjset(t *testing.T, path, dataset string, nwritten, nread, nunlinked int64) {
	t.Helper()
	content := fmt.Sprintf("27 1 0x01 7 2160 5214256498 1254526834417\nname type data\n"+
		"dataset_name 7 %s\nnwritten 4 %d\nnread 4 %d\nnunlinked 4 %d\n", dataset, nwritten, nread, nunlinked)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

type fixture struct {
	dir      string
	entities []*kstat.Snapshot
}

func newFixture(t *testing.T, names ...string) *fixture {
	f := &fixture{dir: t.TempDir()}
	for i, name := range names {
		path := f.path(i)
		writeObjset(t, path, name, 0, 0, 0)
		clock := &stepClock{t: time.Unix(0, 0)}
		f.entities = append(f.entities, kstat.NewSnapshot(kstat.FileSource(path), kstat.WithClock(clock)))
	}

	return f
}

func (f *fixture) path(i int) string {
	return filepath.Join(f.dir, fmt.Sprintf("objset-0x%x", i+1))
}

func TestPoller_Tick(t *testing.T) {
	f := newFixture(t, "tank/a", "tank/b", "tank/c")
	p := NewPoller(PollerConf{Interval: time.Millisecond}, f.entities)

	// first tick: every dataset unchanged, sampled but idle
	tick := p.Tick()
	require.Len(t, tick.Sampled, 3)
	require.Empty(t, tick.Rows)
	require.False(t, tick.At.IsZero())

	writeObjset(t, f.path(0), "tank/a", 2048, 0, 0)
	writeObjset(t, f.path(2), "tank/c", 0, 0, 3)
	require.NoError(t, os.Remove(f.path(1)))

	tick = p.Tick()
	require.Len(t, tick.Sampled, 2)
	require.Len(t, tick.Rows, 2)
	require.Equal(t, "tank/a", tick.Rows[0].Dataset)
	require.Equal(t, 2048.0, tick.Rows[0].Rates[kstat.NWritten])
	require.Equal(t, "tank/c", tick.Rows[1].Dataset)
	require.Equal(t, 3.0, tick.Rows[1].Rates[kstat.NUnlinked])
}

func TestPoller_RunCount(t *testing.T) {
	f := newFixture(t, "tank/a")
	rec := &recorder{}
	p := NewPoller(PollerConf{Interval: time.Millisecond, Count: 3}, f.entities, rec)

	require.NoError(t, p.Run(context.Background()))
	require.Len(t, rec.ticks, 3)
}

func TestPoller_RunCancel(t *testing.T) {
	f := newFixture(t, "tank/a")
	rec := &recorder{}
	p := NewPoller(PollerConf{Interval: time.Hour}, f.entities, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
	require.Empty(t, rec.ticks)
}

func TestPoller_ReporterError(t *testing.T) {
	f := newFixture(t, "tank/a")
	rec := &recorder{err: errors.New("broken pipe")}
	p := NewPoller(PollerConf{Interval: time.Millisecond}, f.entities, rec)

	err := p.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken pipe")
	require.Len(t, rec.ticks, 1)
}

func TestNewPoller_Defaults(t *testing.T) {
	p := NewPoller(PollerConf{}, nil)
	require.Equal(t, time.Second, p.Interval)
	require.NotNil(t, p.Clock)
}
