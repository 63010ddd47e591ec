// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataframe

import (
	"math"
	"sort"
	"time"
)

// AlignUnion merges frames onto the union of their date indexes. Each column
// is forward filled with its last known value, but only between the first and
// last date of the frame it came from; outside of that range the value is NaN.
// Frames are expected to have ascending date indexes.
func AlignUnion(frames ...*DataFrame) *DataFrame {
	unique := make(map[int64]time.Time)
	for _, df := range frames {
		for _, date := range df.Dates {
			if _, ok := unique[date.Unix()]; !ok {
				unique[date.Unix()] = date
			}
		}
	}

	dates := make([]time.Time, 0, len(unique))
	for _, date := range unique {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})

	res := &DataFrame{
		Dates: dates,
	}

	for _, df := range frames {
		for colIdx, name := range df.ColNames {
			res.ColNames = append(res.ColNames, name)
			res.Vals = append(res.Vals, forwardFill(dates, df.Dates, df.Vals[colIdx]))
		}
	}

	return res
}

func forwardFill(grid []time.Time, dates []time.Time, values []float64) []float64 {
	out := make([]float64, len(grid))
	if len(dates) == 0 {
		for idx := range out {
			out[idx] = math.NaN()
		}
		return out
	}

	first := dates[0]
	last := dates[len(dates)-1]
	carry := math.NaN()
	src := 0

	for idx, date := range grid {
		if date.Before(first) || date.After(last) {
			out[idx] = math.NaN()
			continue
		}

		for src < len(dates) && !dates[src].After(date) {
			if !math.IsNaN(values[src]) {
				carry = values[src]
			}
			src++
		}
		out[idx] = carry
	}

	return out
}
