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
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type jsonRow struct {
	Dataset string             `json:"dataset"`
	Rates   map[string]float64 `json:"rates"`
}

type jsonTick struct {
	Time     time.Time `json:"time"`
	Datasets []jsonRow `json:"datasets"`
}

// JSON writes one JSON object per active tick.
type JSON struct {
	enc *jsoniter.Encoder
}

func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w)}
}

func (j *JSON) Report(tick Tick) error {
	if len(tick.Rows) == 0 {
		return nil
	}

	out := jsonTick{Time: tick.At.UTC(), Datasets: make([]jsonRow, len(tick.Rows))}
	for i, r := range tick.Rows {
		out.Datasets[i] = jsonRow{Dataset: r.Dataset, Rates: r.Rates}
	}

	return j.enc.Encode(out)
}
