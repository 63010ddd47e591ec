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

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
)

// Holdings maps a ticker to the number of shares held
type Holdings map[string]float64

// Tickers returns the held tickers in sorted order
func (h Holdings) Tickers() []string {
	tickers := make([]string, 0, len(h))
	for ticker := range h {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers
}

// LedgerWarning describes a transaction that was excluded from replay
type LedgerWarning struct {
	Index    int    `json:"index"`
	SourceID string `json:"source_id"`
	Reason   string `json:"reason"`
}

// Ledger is a date ordered transaction log that can be replayed into
// holdings as of any date
type Ledger struct {
	transactions []*Transaction
	warnings     []LedgerWarning
}

// NewLedger copies the usable transactions of trxs sorted by date. Malformed
// rows are skipped and reported through Warnings.
func NewLedger(trxs []*Transaction) *Ledger {
	ledger := &Ledger{
		transactions: make([]*Transaction, 0, len(trxs)),
	}

	for idx, trx := range trxs {
		if trx == nil {
			continue
		}
		if reason := trx.malformed(); reason != "" {
			log.Warn().Int("Index", idx).Object("Transaction", trx).Str("Reason", reason).Msg("skipping malformed transaction")
			ledger.warnings = append(ledger.warnings, LedgerWarning{
				Index:    idx,
				SourceID: trx.SourceID,
				Reason:   reason,
			})
			continue
		}

		cp := *trx
		cp.Date = common.Day(trx.Date)
		ledger.transactions = append(ledger.transactions, &cp)
	}

	sort.SliceStable(ledger.transactions, func(i, j int) bool {
		return ledger.transactions[i].Date.Before(ledger.transactions[j].Date)
	})

	return ledger
}

// Transactions returns the replayable transactions in date order
func (ledger *Ledger) Transactions() []*Transaction {
	return ledger.transactions
}

func (ledger *Ledger) Warnings() []LedgerWarning {
	return ledger.warnings
}

func (ledger *Ledger) Len() int {
	return len(ledger.transactions)
}

// HoldingsAt replays every transaction dated on or before date
func (ledger *Ledger) HoldingsAt(date time.Time) Holdings {
	return ledger.HoldingsSeries([]time.Time{date})[0]
}

// HoldingsSeries returns the holdings as of each of dates in a single pass
// over the log. The result is index aligned with dates.
func (ledger *Ledger) HoldingsSeries(dates []time.Time) []Holdings {
	order := make([]int, len(dates))
	for idx := range order {
		order[idx] = idx
	}
	sort.SliceStable(order, func(i, j int) bool {
		return dates[order[i]].Before(dates[order[j]])
	})

	result := make([]Holdings, len(dates))
	shares := make(map[string]decimal.Decimal)
	next := 0
	for _, idx := range order {
		day := common.Day(dates[idx])
		for ; next < len(ledger.transactions) && !ledger.transactions[next].Date.After(day); next++ {
			trx := ledger.transactions[next]
			if !trx.IsEquity() {
				continue
			}
			shares[trx.Ticker] = shares[trx.Ticker].Add(decimal.NewFromFloat(trx.SignedQuantity()))
		}
		result[idx] = snapshot(shares)
	}

	return result
}

func snapshot(shares map[string]decimal.Decimal) Holdings {
	holdings := make(Holdings, len(shares))
	for ticker, qty := range shares {
		if !qty.IsPositive() {
			continue
		}
		holdings[ticker], _ = qty.Float64()
	}
	return holdings
}

// TransactionDates returns the distinct transaction dates in ascending order
func (ledger *Ledger) TransactionDates() []time.Time {
	dates := make([]time.Time, 0, len(ledger.transactions))
	for _, trx := range ledger.transactions {
		if len(dates) > 0 && dates[len(dates)-1].Equal(trx.Date) {
			continue
		}
		dates = append(dates, trx.Date)
	}
	return dates
}

// Tickers returns every ticker that has ever been bought or sold
func (ledger *Ledger) Tickers() []string {
	seen := make(map[string]bool)
	tickers := make([]string, 0, 8)
	for _, trx := range ledger.transactions {
		if trx.IsEquity() && !seen[trx.Ticker] {
			seen[trx.Ticker] = true
			tickers = append(tickers, trx.Ticker)
		}
	}
	sort.Strings(tickers)
	return tickers
}
