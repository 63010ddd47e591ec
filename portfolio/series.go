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
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/data"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/dataframe"
)

// ValuePoint is the value of a portfolio on a date. Missing lists the held
// tickers that could not be priced, in which case Value is partial.
type ValuePoint struct {
	Date    time.Time
	Value   float64
	Missing []string
}

// Incomplete is true when at least one holding could not be priced
func (p ValuePoint) Incomplete() bool {
	return len(p.Missing) > 0
}

func (p ValuePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date    string   `json:"date"`
		Value   *float64 `json:"value"`
		Missing []string `json:"missing,omitempty"`
	}{
		Date:    p.Date.Format("2006-01-02"),
		Value:   nullable(p.Value),
		Missing: p.Missing,
	})
}

// ValueSeries is a date ordered list of portfolio values
type ValueSeries struct {
	Points    []ValuePoint
	Frequency dataframe.Frequency
}

// NewValueSeries sorts points by date keeping the last point of each day and
// rejects non-finite values and negative values on complete points
func NewValueSeries(points []ValuePoint, freq dataframe.Frequency) (*ValueSeries, error) {
	sorted := make([]ValuePoint, len(points))
	copy(sorted, points)
	for idx := range sorted {
		sorted[idx].Date = common.Day(sorted[idx].Date)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	deduped := make([]ValuePoint, 0, len(sorted))
	for _, point := range sorted {
		if math.IsNaN(point.Value) || math.IsInf(point.Value, 0) {
			return nil, fmt.Errorf("%w: non-finite value on %s", ErrValidation, point.Date.Format("2006-01-02"))
		}
		if point.Value < 0 && !point.Incomplete() {
			return nil, fmt.Errorf("%w: negative value on %s", ErrValidation, point.Date.Format("2006-01-02"))
		}
		if n := len(deduped); n > 0 && deduped[n-1].Date.Equal(point.Date) {
			deduped[n-1] = point
			continue
		}
		deduped = append(deduped, point)
	}

	return &ValueSeries{
		Points:    deduped,
		Frequency: freq,
	}, nil
}

func (s *ValueSeries) Len() int {
	return len(s.Points)
}

func (s *ValueSeries) Dates() []time.Time {
	dates := make([]time.Time, len(s.Points))
	for idx, point := range s.Points {
		dates[idx] = point.Date
	}
	return dates
}

func (s *ValueSeries) Values() []float64 {
	vals := make([]float64, len(s.Points))
	for idx, point := range s.Points {
		vals[idx] = point.Value
	}
	return vals
}

// Complete returns a series containing only the points with every holding priced
func (s *ValueSeries) Complete() *ValueSeries {
	points := make([]ValuePoint, 0, len(s.Points))
	for _, point := range s.Points {
		if !point.Incomplete() {
			points = append(points, point)
		}
	}
	return &ValueSeries{Points: points, Frequency: s.Frequency}
}

// MissingTickers flattens the unpriced (ticker, date) pairs of every point
func (s *ValueSeries) MissingTickers() []data.Missing {
	missing := make([]data.Missing, 0)
	for _, point := range s.Points {
		for _, ticker := range point.Missing {
			missing = append(missing, data.Missing{Ticker: ticker, Date: point.Date})
		}
	}
	return missing
}

// DataFrame converts the series to a single column dataframe named name
func (s *ValueSeries) DataFrame(name string) *dataframe.DataFrame {
	return &dataframe.DataFrame{
		Dates:    s.Dates(),
		ColNames: []string{name},
		Vals:     [][]float64{s.Values()},
	}
}

// PeriodsPerYear returns the annualization factor of the series. If the
// frequency is unknown it is inferred from the median spacing of the samples.
func (s *ValueSeries) PeriodsPerYear() float64 {
	if ppy := s.Frequency.PeriodsPerYear(); ppy > 0 {
		return ppy
	}
	return InferFrequency(s.Dates()).PeriodsPerYear()
}

// InferFrequency classifies a date index by its median spacing in days
func InferFrequency(dates []time.Time) dataframe.Frequency {
	if len(dates) < 2 {
		return dataframe.Unknown
	}

	gaps := make([]int, 0, len(dates)-1)
	for idx := 1; idx < len(dates); idx++ {
		gaps = append(gaps, common.DaysBetween(dates[idx-1], dates[idx]))
	}
	sort.Ints(gaps)
	median := gaps[len(gaps)/2]

	switch {
	case median <= 4:
		return dataframe.Daily
	case median <= 10:
		return dataframe.Weekly
	default:
		return dataframe.Monthly
	}
}

func (s *ValueSeries) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Frequency      dataframe.Frequency `json:"frequency"`
		ValueHistory   []ValuePoint        `json:"value_history"`
		MissingTickers []data.Missing      `json:"missing_tickers"`
	}{
		Frequency:      s.Frequency,
		ValueHistory:   s.Points,
		MissingTickers: s.MissingTickers(),
	})
}

// nullable converts undefined values to nil so they encode as JSON null
func nullable(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
