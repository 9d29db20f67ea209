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
	"fmt"
	"io"
	"os"

	"objsetstat/pkg/kstat"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var tableColumns = []string{"write/s", "read/s", "unlink/s"}

// Table prints active datasets as a console table. The header is printed
// only on ticks that have rows, and with HeaderEvery > 0 only once every
// HeaderEvery such ticks.
type Table struct {
	Out         io.Writer
	Exact       bool
	HeaderEvery int
	Color       bool

	printed int
}

// NewTable returns a Table writing to w, colored when w is a terminal.
func NewTable(w io.Writer, exact bool, headerEvery int) *Table {
	t := &Table{Out: w, Exact: exact, HeaderEvery: headerEvery}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		t.Color = true
	}

	return t
}

func (t *Table) Report(tick Tick) error {
	if len(tick.Rows) == 0 {
		return nil
	}

	width := len("dataset")
	for _, r := range tick.Rows {
		if len(r.Dataset) > width {
			width = len(r.Dataset)
		}
	}

	if t.HeaderEvery == 0 || t.printed%t.HeaderEvery == 0 {
		if err := t.header(width); err != nil {
			return err
		}
	}
	t.printed++

	for _, r := range tick.Rows {
		_, err := fmt.Fprintf(t.Out, "%-*s %10s %10s %10s\n", width, r.Dataset,
			t.bytes(r.Rates[kstat.NWritten]),
			t.bytes(r.Rates[kstat.NRead]),
			t.count(r.Rates[kstat.NUnlinked]))
		if err != nil {
			return err
		}
	}

	return nil
}

func (t *Table) header(width int) error {
	hdr := color.New(color.Bold)
	if t.Color {
		hdr.EnableColor()
	} else {
		hdr.DisableColor()
	}

	_, err := hdr.Fprintf(t.Out, "%-*s %10s %10s %10s\n", width, "dataset",
		tableColumns[0], tableColumns[1], tableColumns[2])

	return err
}

func (t *Table) bytes(rate float64) string {
	if t.Exact || rate < 0 {
		return fmt.Sprintf("%.0f", rate)
	}

	return units.BytesSize(rate)
}

func (t *Table) count(rate float64) string {
	if t.Exact {
		return fmt.Sprintf("%.0f", rate)
	}

	return fmt.Sprintf("%.1f", rate)
}
