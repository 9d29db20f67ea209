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

// Package timesync provides a clock corrected by the offset reported by an
// NTP server. It is used to stamp log lines and reported ticks; polling
// intervals keep using the local monotonic clock.
package timesync

import (
	"context"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"go.uber.org/zap"
)

type TimeSync struct {
	host     string
	interval time.Duration
	retries  int
	queryNTP func(string) (*ntp.Response, error) // to enable mocking

	delta        time.Duration
	shouldAdjust bool

	ticker *time.Ticker
	stopFn context.CancelFunc
	wg     *sync.WaitGroup
	*sync.RWMutex
}

const (
	defaultSyncInterval = 120 * time.Second
	defaultRetryCount   = 3

	// offsets inside this window are not worth correcting
	maxAhead  = 3 * time.Second
	maxBehind = -500 * time.Millisecond
)

func NewTimeSync(host string, retries int) *TimeSync {
	if retries <= 0 {
		retries = defaultRetryCount
	}

	return &TimeSync{
		host:     host,
		interval: defaultSyncInterval,
		retries:  retries,
		queryNTP: ntp.Query,
		wg:       &sync.WaitGroup{},
		RWMutex:  &sync.RWMutex{},
	}
}

// SetSyncInterval sets a new interval for querying the NTP server.
// It does NOT affect a running routine; call Start again to apply it.
func (t *TimeSync) SetSyncInterval(interval time.Duration) {
	t.Lock()
	defer t.Unlock()
	t.interval = interval
}

// Start periodically queries the NTP server until ctx is done or Stop is
// called. Calling Start again replaces the running routine.
func (t *TimeSync) Start(ctx context.Context) {
	t.Lock()
	if t.stopFn != nil {
		t.stopFn()
	}
	if t.interval <= 0 {
		t.interval = defaultSyncInterval
	}
	ctx, t.stopFn = context.WithCancel(ctx)
	t.ticker = time.NewTicker(t.interval)
	ticker := t.ticker
	t.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := t.QueryNTP(); err != nil {
					zap.S().Warnw("failed to sync time with NTP server", "host", t.host, zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the sync routine and waits for it to exit.
func (t *TimeSync) Stop() {
	t.Lock()
	if t.stopFn != nil {
		t.stopFn()
		t.stopFn = nil
	}
	t.Unlock()
	t.wg.Wait()
}

// SyncNow queries the NTP server right away and resets the periodic timer.
func (t *TimeSync) SyncNow() error {
	t.Lock()
	if t.ticker != nil {
		t.ticker.Reset(t.interval)
	}
	t.Unlock()

	return t.QueryNTP()
}

// QueryNTP queries the NTP server and stores the clock offset.
func (t *TimeSync) QueryNTP() error {
	var (
		resp *ntp.Response
		err  error
	)
	for i := 0; i < t.retries; i++ {
		resp, err = t.queryNTP(t.host)
		if err == nil {
			break
		}
		zap.S().Debugw("error querying NTP server", "attempt", i+1, "of", t.retries, zap.Error(err))
	}
	if err != nil {
		return err
	}

	t.Lock()
	t.delta = resp.ClockOffset
	t.shouldAdjust = t.delta > maxAhead || t.delta < maxBehind
	t.Unlock()
	zap.S().Infow("time synced", "host", t.host, "offset", resp.ClockOffset)

	return nil
}

func (t *TimeSync) Offset() time.Duration {
	t.RLock()
	defer t.RUnlock()

	return t.delta
}

// Now returns the current time, adjusted by the NTP offset when it is
// large enough to matter.
func (t *TimeSync) Now() time.Time {
	t.RLock()
	defer t.RUnlock()
	if t.shouldAdjust {
		return time.Now().Add(t.delta)
	}

	return time.Now()
}

// NewTicker implements zapcore.Clock interface.
func (t *TimeSync) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}
