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

package data

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Interval is an inclusive range of days
type Interval struct {
	Begin time.Time
	End   time.Time
}

// Adjacent checks if other ends the day before interval begins or begins the
// day after interval ends (daily resolution)
// NOTE: Adjaceny implies the two intervals DO NOT overlap
func (interval *Interval) Adjacent(other *Interval) bool {
	return other.End.AddDate(0, 0, 1).Equal(interval.Begin) ||
		other.Begin.AddDate(0, 0, -1).Equal(interval.End)
}

// Contains returns true if interval completely contains other
func (interval *Interval) Contains(other *Interval) bool {
	return !other.Begin.Before(interval.Begin) && !other.End.After(interval.End)
}

// Overlaps returns true if interval and other share at least one day
func (interval *Interval) Overlaps(other *Interval) bool {
	return !other.Begin.After(interval.End) && !other.End.Before(interval.Begin)
}

// Union returns the smallest interval containing both interval and other
func (interval *Interval) Union(other *Interval) *Interval {
	res := &Interval{Begin: interval.Begin, End: interval.End}
	if other.Begin.Before(res.Begin) {
		res.Begin = other.Begin
	}
	if other.End.After(res.End) {
		res.End = other.End
	}
	return res
}

// Valid checks if the given interval is valid range and returns an error if not
func (interval *Interval) Valid() error {
	if interval.Begin.After(interval.End) {
		return ErrBeginAfterEnd
	}
	return nil
}

// MarshalZerologObject implement the log marshaller interface for zerolog
func (interval *Interval) MarshalZerologObject(e *zerolog.Event) {
	e.Time("Begin", interval.Begin).Time("End", interval.End)
}

// mergeInterval inserts add into a sorted list of disjoint intervals, joining
// any that overlap or touch it. The input list is not modified.
func mergeInterval(intervals []*Interval, add *Interval) []*Interval {
	merged := make([]*Interval, 0, len(intervals)+1)
	current := &Interval{Begin: add.Begin, End: add.End}
	for _, item := range intervals {
		if item.Overlaps(current) || item.Adjacent(current) {
			current = current.Union(item)
			continue
		}
		merged = append(merged, item)
	}
	merged = append(merged, current)
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Begin.Before(merged[j].Begin)
	})
	return merged
}

// covered returns true if a single interval in the list contains want
func covered(intervals []*Interval, want *Interval) bool {
	for _, item := range intervals {
		if item.Contains(want) {
			return true
		}
	}
	return false
}

// uncovered returns the smallest interval spanning every day of want that is
// not inside the sorted, disjoint intervals, or nil when want is covered
func uncovered(intervals []*Interval, want *Interval) *Interval {
	var gap *Interval
	extend := func(add *Interval) {
		if gap == nil {
			gap = add
			return
		}
		gap = gap.Union(add)
	}

	cursor := want.Begin
	for _, item := range intervals {
		if cursor.After(want.End) || item.Begin.After(want.End) {
			break
		}
		if item.End.Before(cursor) {
			continue
		}
		if item.Begin.After(cursor) {
			extend(&Interval{Begin: cursor, End: item.Begin.AddDate(0, 0, -1)})
		}
		cursor = item.End.AddDate(0, 0, 1)
	}
	if !cursor.After(want.End) {
		extend(&Interval{Begin: cursor, End: want.End})
	}

	return gap
}
