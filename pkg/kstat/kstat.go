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

// Package kstat reads ZFS per-dataset (objset) kstat files and derives
// per-second rates from consecutive reads.
package kstat

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/prometheus/procfs"
)

const (
	// KeyDatasetName carries the dataset identity in an objset kstat.
	KeyDatasetName = "dataset_name"

	// TypeUint64 is the kstat data type code of the counters we collect
	// (KSTAT_DATA_UINT64).
	TypeUint64 = "4"

	// ObjsetPrefix prefixes every per-dataset kstat file name.
	ObjsetPrefix = "objset-"
)

// Counters exposed by every objset kstat.
const (
	Writes    = "writes"
	NWritten  = "nwritten"
	Reads     = "reads"
	NRead     = "nread"
	NUnlinks  = "nunlinks"
	NUnlinked = "nunlinked"
)

// DefaultRoot is the kstat tree of the ZFS module under the default procfs
// mount point.
var DefaultRoot = RootFromProc(procfs.DefaultMountPoint)

// RootFromProc returns the ZFS kstat tree below a procfs mount point.
// Useful when running in a container with the host's /proc mounted elsewhere.
func RootFromProc(procPath string) string {
	return filepath.Join(procPath, "spl", "kstat", "zfs")
}

// Source is a readable counter dump, usually a kstat file.
type Source interface {
	ReadLines() ([]string, error)
	String() string
}

// FileSource reads a kstat file from disk.
type FileSource string

func (f FileSource) ReadLines() ([]string, error) {
	file, err := os.Open(string(f))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

func (f FileSource) String() string {
	return string(f)
}
