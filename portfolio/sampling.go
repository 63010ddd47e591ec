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

package portfolio

import (
	"sort"
	"time"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/dataframe"
)

// Cadence picks the sampling frequency for a date range: daily up to one
// year, weekly up to three years and monthly beyond that
func Cadence(begin, end time.Time) dataframe.Frequency {
	switch {
	case !end.After(begin.AddDate(1, 0, 0)):
		return dataframe.Daily
	case !end.After(begin.AddDate(3, 0, 0)):
		return dataframe.Weekly
	default:
		return dataframe.Monthly
	}
}

// SampleDates returns the ascending, de-duplicated dates on which a series
// over [begin, end] is evaluated. begin, end and every anchor inside the range
// are always included.
func SampleDates(begin, end time.Time, anchors []time.Time) ([]time.Time, dataframe.Frequency) {
	begin = common.Day(begin)
	end = common.Day(end)
	if end.Before(begin) {
		return []time.Time{}, dataframe.Unknown
	}

	freq := Cadence(begin, end)
	dates := make([]time.Time, 0, 256)
	for idx := 0; ; idx++ {
		var dt time.Time
		switch freq {
		case dataframe.Daily:
			dt = begin.AddDate(0, 0, idx)
		case dataframe.Weekly:
			dt = begin.AddDate(0, 0, 7*idx)
		default:
			dt = addMonthsClamped(begin, idx)
		}
		if dt.After(end) {
			break
		}
		dates = append(dates, dt)
	}

	dates = append(dates, end)
	for _, anchor := range anchors {
		anchor = common.Day(anchor)
		if !anchor.Before(begin) && !anchor.After(end) {
			dates = append(dates, anchor)
		}
	}

	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})

	unique := dates[:0]
	for _, dt := range dates {
		if n := len(unique); n > 0 && unique[n-1].Equal(dt) {
			continue
		}
		unique = append(unique, dt)
	}

	return unique, freq
}

// addMonthsClamped moves t forward n months keeping the day of month, clamped
// to the length of the target month (Jan 31 + 1 month = Feb 28)
func addMonthsClamped(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	d := t.Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}
