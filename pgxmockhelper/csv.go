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

package pgxmockhelper

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/pashagolub/pgxmock"
	"github.com/rs/zerolog/log"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
)

// CSVRows holds fixture rows read from a csv file with a header line
type CSVRows struct {
	rows    [][]any
	header  []string
	dateCol int
}

// NewCSVRows reads csvFn converting the columns named in typeMap to "date"
// (YYYY-MM-DD in the reference timezone) or "float64"; other columns stay strings
func NewCSVRows(csvFn string, typeMap map[string]string) *CSVRows {
	subLog := log.With().Str("CsvFn", csvFn).Logger()

	fh, err := os.Open(csvFn)
	if err != nil {
		subLog.Panic().Err(err).Msg("could not read file")
	}
	defer fh.Close()

	records, err := csv.NewReader(fh).ReadAll()
	if err != nil {
		subLog.Panic().Err(err).Msg("could not parse csv")
	}
	if len(records) < 1 {
		subLog.Panic().Msg("input file does not have a header")
	}

	rows := &CSVRows{
		dateCol: -1,
		header:  records[0],
		rows:    make([][]any, 0, len(records)-1),
	}

	tz := common.GetTimezone()
	for _, record := range records[1:] {
		cols := make([]any, len(rows.header))
		for idx, val := range record {
			switch typeMap[rows.header[idx]] {
			case "date":
				parsed, err := time.ParseInLocation("2006-01-02", val, tz)
				if err != nil {
					subLog.Panic().Err(err).Str("Val", val).Msg("could not convert val to datetime of format 2006-01-02")
				}
				cols[idx] = parsed
				rows.dateCol = idx
			case "float64":
				parsed, err := strconv.ParseFloat(val, 64)
				if err != nil {
					subLog.Panic().Err(err).Str("Val", val).Msg("could not convert val to float64")
				}
				cols[idx] = parsed
			default:
				cols[idx] = val
			}
		}
		rows.rows = append(rows.rows, cols)
	}

	return rows
}

// Between keeps only rows whose date column is within [a, b]
func (csvRows *CSVRows) Between(a time.Time, b time.Time) *CSVRows {
	if len(csvRows.rows) == 0 {
		return csvRows
	}
	if csvRows.dateCol == -1 {
		log.Panic().Time("a", a).Time("b", b).Msg("no date column found")
	}

	newRows := make([][]any, 0, len(csvRows.rows))
	for _, row := range csvRows.rows {
		t := row[csvRows.dateCol].(time.Time)
		if !t.Before(a) && !t.After(b) {
			newRows = append(newRows, row)
		}
	}
	csvRows.rows = newRows
	return csvRows
}

func (csvRows *CSVRows) Rows() *pgxmock.Rows {
	r := pgxmock.NewRows(csvRows.header)
	for _, row := range csvRows.rows {
		r.AddRow(row...)
	}
	return r
}

// MockEodQuery expects a transaction that selects eod rows for ticker
func MockEodQuery(db pgxmock.PgxConnIface, fn string, ticker string, begin, end time.Time) {
	db.ExpectBegin()
	db.ExpectQuery("SELECT event_date, open, high, low, close").
		WithArgs(ticker, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(NewCSVRows(fn, map[string]string{
			"event_date": "date",
			"open":       "float64",
			"high":       "float64",
			"low":        "float64",
			"close":      "float64",
			"volume":     "float64",
		}).Between(begin, end).Rows())
	db.ExpectCommit()
}

// MockTransactionsQuery expects a transaction that selects the transaction log of accountID
func MockTransactionsQuery(db pgxmock.PgxConnIface, fn string, accountID string) {
	db.ExpectBegin()
	db.ExpectQuery("SELECT event_date, .* FROM transactions").
		WithArgs(accountID).
		WillReturnRows(NewCSVRows(fn, map[string]string{
			"event_date": "date",
			"quantity":   "float64",
			"price":      "float64",
			"amount":     "float64",
		}).Rows())
	db.ExpectCommit()
}
