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
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
)

// StaticProvider serves quotes held in memory
type StaticProvider struct {
	points map[string][]*PricePoint
}

// NewStaticProvider groups points by ticker
func NewStaticProvider(points []*PricePoint) *StaticProvider {
	s := &StaticProvider{
		points: make(map[string][]*PricePoint),
	}
	for _, point := range points {
		ticker := normalizeTicker(point.Ticker)
		s.points[ticker] = append(s.points[ticker], point)
	}
	for _, tickerPoints := range s.points {
		sort.SliceStable(tickerPoints, func(i, j int) bool {
			return tickerPoints[i].Date.Before(tickerPoints[j].Date)
		})
	}
	return s
}

// Fetch returns the stored quotes for ticker in [begin, end]
func (s *StaticProvider) Fetch(ctx context.Context, ticker string, begin, end time.Time) ([]*PricePoint, error) {
	if end.Before(begin) {
		return nil, ErrBeginAfterEnd
	}

	res := make([]*PricePoint, 0)
	for _, point := range s.points[normalizeTicker(ticker)] {
		if point.Date.Before(begin) || point.Date.After(end) {
			continue
		}
		res = append(res, point)
	}
	return res, nil
}

// Tickers returns every ticker the provider has quotes for
func (s *StaticProvider) Tickers() []string {
	res := make([]string, 0, len(s.points))
	for ticker := range s.points {
		res = append(res, ticker)
	}
	sort.Strings(res)
	return res
}

// LoadPricesCSV reads a price file into a StaticProvider
func LoadPricesCSV(fn string) (*StaticProvider, error) {
	fh, err := os.Open(fn)
	if err != nil {
		log.Error().Err(err).Str("FileName", fn).Msg("could not open price file")
		return nil, err
	}
	defer fh.Close()

	points, err := ReadPricesCSV(fh)
	if err != nil {
		return nil, err
	}
	return NewStaticProvider(points), nil
}

// ReadPricesCSV parses rows of ticker,date,open,high,low,close,volume. The
// header is required; columns may appear in any order and only ticker, date
// and close are mandatory.
func ReadPricesCSV(r io.Reader) ([]*PricePoint, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: could not read header: %w", ErrInvalidPriceRow, err)
	}

	cols := make(map[string]int, len(header))
	for idx, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = idx
	}

	for _, required := range []string{"ticker", "date", "close"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrInvalidPriceRow, required)
		}
	}

	points := make([]*PricePoint, 0, 1024)
	lineNo := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		lineNo++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidPriceRow, lineNo, err)
		}

		field := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		day, err := common.ParseDay(field("date"))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidPriceRow, lineNo, err)
		}

		point := &PricePoint{
			Ticker: normalizeTicker(field("ticker")),
			Date:   day,
		}

		for _, col := range []struct {
			name string
			dest *float64
		}{
			{"open", &point.Open},
			{"high", &point.High},
			{"low", &point.Low},
			{"close", &point.Close},
			{"volume", &point.Volume},
		} {
			raw := field(col.name)
			if raw == "" {
				continue
			}
			val, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %s: %w", ErrInvalidPriceRow, lineNo, col.name, err)
			}
			*col.dest = val
		}

		if point.Ticker == "" {
			return nil, fmt.Errorf("%w: line %d: empty ticker", ErrInvalidPriceRow, lineNo)
		}

		points = append(points, point)
	}

	return points, nil
}
