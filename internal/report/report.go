// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package report renders flow statistics for the console.
package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/openconfig/ngpfbgp/internal/ixnet"
)

// Columns of the flow statistics view shown in the table, in table order.
var Columns = []struct {
	Header, Caption string
	Width           int
}{
	{"txPort", "Tx Port", 10},
	{"txFrames", "Tx Frames", 15},
	{"rxPort", "Rx Port", 10},
	{"rxFrames", "Rx Frames", 15},
	{"frameLoss", "Frames Delta", 10},
}

const ruleWidth = 90

func writeRow(out *strings.Builder, values []string) {
	for i, c := range Columns {
		if i > 0 {
			out.WriteString(" ")
		}
		fmt.Fprintf(out, "%-*s", c.Width, values[i])
	}
	out.WriteString("\n")
}

// WriteFlowTable writes one row per flow group of stats in ascending flow
// group order under a header and a rule. Counters missing from a row are
// left blank.
func WriteFlowTable(w io.Writer, stats ixnet.FlowStats) error {
	var out strings.Builder
	out.WriteString("\n")
	headers := make([]string, len(Columns))
	for i, c := range Columns {
		headers[i] = c.Header
	}
	writeRow(&out, headers)
	out.WriteString(strings.Repeat("-", ruleWidth))
	out.WriteString("\n")
	for _, fg := range slices.Sorted(maps.Keys(stats)) {
		values := make([]string, len(Columns))
		for i, c := range Columns {
			values[i] = stats[fg][c.Caption]
		}
		writeRow(&out, values)
	}
	_, err := io.WriteString(w, out.String())
	return err
}
