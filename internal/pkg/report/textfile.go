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
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Textfile writes the gathered metrics of a registry to a file in the
// Prometheus text format after every tick, for the node exporter textfile
// collector. The file is replaced atomically.
type Textfile struct {
	Path     string
	Gatherer prometheus.Gatherer
}

func (t *Textfile) Report(Tick) error {
	mfs, err := t.Gatherer.Gather()
	if err != nil {
		return errors.Wrap(err, "gathering metrics")
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.Path), "."+filepath.Base(t.Path)+".*")
	if err != nil {
		return errors.Wrap(err, "creating textfile")
	}
	defer os.Remove(tmp.Name())

	enc := expfmt.NewEncoder(tmp, expfmt.FmtText)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			tmp.Close()

			return errors.Wrapf(err, "encoding %s", mf.GetName())
		}
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing textfile")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrap(err, "chmod textfile")
	}

	return errors.Wrapf(os.Rename(tmp.Name(), t.Path), "renaming textfile to %s", t.Path)
}
