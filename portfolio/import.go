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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
)

var dateLayouts = []string{"2006-01-02", "1/2/2006", "01/02/2006", "1/2/06"}

// columns names the header fields of a supported transaction export
type columns struct {
	date     string
	ticker   string
	action   string
	quantity string
	price    string
	amount   string
	sourceID string
}

var (
	genericColumns = columns{
		date:     "date",
		ticker:   "ticker",
		action:   "action",
		quantity: "quantity",
		price:    "price",
		amount:   "amount",
		sourceID: "source_id",
	}

	brokerageColumns = columns{
		date:     "activity date",
		ticker:   "instrument",
		action:   "trans code",
		quantity: "quantity",
		price:    "price",
		amount:   "amount",
	}
)

// LoadTransactionsCSV reads the transaction log stored in fn
func LoadTransactionsCSV(fn string) ([]*Transaction, error) {
	fh, err := os.Open(fn)
	if err != nil {
		log.Error().Err(err).Str("FileName", fn).Msg("could not open transaction file")
		return nil, err
	}
	defer fh.Close()
	return ReadTransactionsCSV(fh)
}

// ReadTransactionsCSV parses either the generic export (date, ticker, action,
// quantity, price, amount[, source_id]) or a brokerage activity export (Activity
// Date, Instrument, Trans Code, Quantity, Price, Amount). Fields that cannot be
// parsed are left at their zero value (NaN for quantity) so the ledger reports
// the row instead of the whole file failing.
func ReadTransactionsCSV(r io.Reader) ([]*Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoTransactions
		}
		return nil, err
	}

	index := make(map[string]int, len(header))
	for idx, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		index[name] = idx
	}
	if idx, ok := index["event_date"]; ok {
		index["date"] = idx
	}

	var cols columns
	switch {
	case hasAll(index, brokerageColumns.date, brokerageColumns.ticker, brokerageColumns.action):
		cols = brokerageColumns
	case hasAll(index, genericColumns.date, genericColumns.ticker, genericColumns.action, genericColumns.quantity):
		cols = genericColumns
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownHeader, strings.Join(header, ","))
	}

	field := func(record []string, name string) string {
		idx, ok := index[name]
		if !ok || name == "" || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	trxs := make([]*Transaction, 0, 64)
	for lineNo := 2; ; lineNo++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Error().Err(err).Int("Line", lineNo).Msg("could not read transaction file")
			return nil, err
		}
		if blank(record) {
			continue
		}

		dateStr := field(record, cols.date)
		date, err := parseDate(dateStr)
		if err != nil {
			log.Warn().Int("Line", lineNo).Str("Date", dateStr).Msg("unparseable transaction date")
		}

		quantity := math.NaN()
		if qtyStr := field(record, cols.quantity); qtyStr != "" {
			if qty, err := parseNumber(qtyStr); err == nil {
				quantity = qty
			}
		} else {
			quantity = 0
		}

		price, _ := parseNumber(field(record, cols.price))
		amount, _ := parseNumber(field(record, cols.amount))

		trx := NewTransaction(date, field(record, cols.ticker), ParseAction(field(record, cols.action)), quantity, price, amount)
		if id := field(record, cols.sourceID); id != "" {
			trx.SourceID = id
		}
		trxs = append(trxs, trx)
	}

	if len(trxs) == 0 {
		return nil, ErrNoTransactions
	}

	log.Debug().Int("NumTransactions", len(trxs)).Msg("read transaction log")
	return trxs, nil
}

func hasAll(index map[string]int, names ...string) bool {
	for _, name := range names {
		if _, ok := index[name]; !ok {
			return false
		}
	}
	return true
}

func blank(record []string) bool {
	for _, val := range record {
		if strings.TrimSpace(val) != "" {
			return false
		}
	}
	return true
}

func parseDate(s string) (time.Time, error) {
	tz := common.GetTimezone()
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, s, tz); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// parseNumber accepts plain numbers and currency strings such as $1,234.56
// and ($100.00); an empty string is zero
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	// short positions are suffixed with S in brokerage exports
	s = strings.TrimSuffix(s, "S")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if negative {
		d = d.Neg()
	}
	f, _ := d.Float64()
	return f, nil
}
