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

// Package discover finds the per-dataset kstat files of ZFS pools.
package discover

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"objsetstat/pkg/kstat"

	"github.com/cenkalti/backoff"
	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrNoObjsets = errors.New("no objset kstats found")

// Candidate is a discovered objset kstat file.
type Candidate struct {
	Pool string
	Path string
}

// Pools returns the pools under root exposing objset kstats, sorted by name.
func Pools(root string) ([]string, error) {
	dirents, err := godirwalk.ReadDirents(root, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "reading kstat root %s", root)
	}
	sort.Sort(dirents)

	var pools []string
	for _, de := range dirents {
		if !de.IsDir() {
			continue
		}
		objsets, err := Objsets(root, de.Name())
		if err != nil || len(objsets) == 0 {
			continue
		}
		pools = append(pools, de.Name())
	}

	return pools, nil
}

// Objsets returns the objset kstat files of pool ordered by objset id.
func Objsets(root, pool string) ([]Candidate, error) {
	dir := filepath.Join(root, pool)
	names, err := godirwalk.ReadDirnames(dir, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "reading pool kstats %s", dir)
	}

	var out []Candidate
	for _, name := range names {
		if !strings.HasPrefix(name, kstat.ObjsetPrefix) {
			continue
		}
		out = append(out, Candidate{Pool: pool, Path: filepath.Join(dir, name)})
	}
	sort.Slice(out, func(i, j int) bool {
		return objsetLess(filepath.Base(out[i].Path), filepath.Base(out[j].Path))
	})

	return out, nil
}

// objsetLess orders "objset-0x<hex>" names numerically, falling back to a
// plain string comparison for ids that do not parse.
func objsetLess(a, b string) bool {
	ia, erra := objsetID(a)
	ib, errb := objsetID(b)
	if erra != nil || errb != nil || ia == ib {
		return a < b
	}

	return ia < ib
}

func objsetID(name string) (uint64, error) {
	hex := strings.TrimPrefix(strings.TrimPrefix(name, kstat.ObjsetPrefix), "0x")

	return strconv.ParseUint(hex, 16, 64)
}

// Candidates collects the objsets of every pool, in pool order. Without
// pools every pool under root is used.
func Candidates(root string, pools []string) ([]Candidate, error) {
	if len(pools) == 0 {
		var err error
		pools, err = Pools(root)
		if err != nil {
			return nil, err
		}
	}

	var out []Candidate
	for _, pool := range pools {
		objsets, err := Objsets(root, pool)
		if err != nil {
			return nil, err
		}
		out = append(out, objsets...)
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(ErrNoObjsets, "kstat root %s", root)
	}

	return out, nil
}

// Universe opens a snapshot for every candidate. Candidates whose first
// read fails or that carry no dataset name are skipped, as are later
// candidates repeating an already seen name. Candidate order is kept.
func Universe(candidates []Candidate, opts ...kstat.Option) []*kstat.Snapshot {
	log := zap.S()

	seen := make(map[string]struct{}, len(candidates))
	out := make([]*kstat.Snapshot, 0, len(candidates))
	for _, c := range candidates {
		s := kstat.NewSnapshot(kstat.FileSource(c.Path), opts...)
		if !s.Ready() || s.Name() == "" {
			log.Warnw("skipping unreadable objset kstat", "path", c.Path)

			continue
		}
		if _, ok := seen[s.Name()]; ok {
			log.Debugw("skipping duplicate dataset", "dataset", s.Name(), "path", c.Path)

			continue
		}
		seen[s.Name()] = struct{}{}
		out = append(out, s)
	}

	return out
}

// WaitForPool waits for the kstat directory of pool to appear, retrying with
// exponential backoff for at most maxWait. A zero maxWait checks once.
func WaitForPool(ctx context.Context, root, pool string, maxWait time.Duration) error {
	dir := filepath.Join(root, pool)
	check := func() error {
		fi, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return errors.Errorf("%s is not a directory", dir)
		}

		return nil
	}

	if maxWait == 0 {
		return errors.Wrapf(check(), "pool %s", pool)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = maxWait

	notify := func(err error, next time.Duration) {
		zap.S().Infow("waiting for pool kstats", "pool", pool, "retry_timer", next, zap.Error(err))
	}

	return errors.Wrapf(backoff.RetryNotify(check, backoff.WithContext(bo, ctx), notify), "pool %s", pool)
}
