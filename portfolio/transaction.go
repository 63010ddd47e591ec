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
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
)

// Action is the kind of event a transaction records
type Action string

const (
	Buy      Action = "Buy"
	Sell     Action = "Sell"
	Dividend Action = "Dividend"
	Transfer Action = "Transfer"
	Other    Action = "Other"
)

// brokerage activity codes that do not spell out the action
var transCodes = map[string]Action{
	"BUY":   Buy,
	"SELL":  Sell,
	"CDIV":  Dividend,
	"MDIV":  Dividend,
	"DIV":   Dividend,
	"QDIV":  Dividend,
	"ACH":   Transfer,
	"ACATI": Transfer,
	"ACATO": Transfer,
	"XENT":  Transfer,
	"DCF":   Transfer,
	"RTP":   Transfer,
}

// ParseAction maps an action name or brokerage trans code to an Action.
// Anything unrecognized is Other.
func ParseAction(s string) Action {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "DIVIDEND":
		return Dividend
	case "TRANSFER":
		return Transfer
	}
	if action, ok := transCodes[s]; ok {
		return action
	}
	return Other
}

// Transaction is a single row of the transaction log. Transactions are
// treated as immutable once constructed.
type Transaction struct {
	Date     time.Time `json:"date"`
	Ticker   string    `json:"ticker,omitempty"`
	Action   Action    `json:"action"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	Amount   float64   `json:"amount"`
	SourceID string    `json:"sourceId"`
}

// NewTransaction normalizes the ticker and computes the SourceID of the row
func NewTransaction(date time.Time, ticker string, action Action, quantity, price, amount float64) *Transaction {
	trx := &Transaction{
		Date:     date,
		Ticker:   strings.ToUpper(strings.TrimSpace(ticker)),
		Action:   action,
		Quantity: quantity,
		Price:    price,
		Amount:   amount,
	}
	trx.SourceID = trx.digest()
	return trx
}

// digest is a content hash of the row; identical rows share a digest
func (trx *Transaction) digest() string {
	content := fmt.Sprintf("%s|%s|%s|%.8f|%.8f|%.8f", trx.Date.Format("2006-01-02"), trx.Ticker, trx.Action, trx.Quantity, trx.Price, trx.Amount)
	sum := blake3.Sum256([]byte(content))
	return hex.EncodeToString(sum[:16])
}

// IsEquity returns true if the transaction changes the share count of a ticker
func (trx *Transaction) IsEquity() bool {
	return trx.Action == Buy || trx.Action == Sell
}

// SignedQuantity returns the change in shares; the sign comes from the action
// regardless of how the quantity was recorded
func (trx *Transaction) SignedQuantity() float64 {
	switch trx.Action {
	case Buy:
		return math.Abs(trx.Quantity)
	case Sell:
		return -math.Abs(trx.Quantity)
	default:
		return 0
	}
}

// malformed returns a reason the transaction cannot be replayed or the empty
// string if it is usable
func (trx *Transaction) malformed() string {
	if trx.Date.IsZero() {
		return "missing date"
	}
	if !trx.IsEquity() {
		return ""
	}
	if trx.Ticker == "" {
		return "missing ticker"
	}
	if math.IsNaN(trx.Quantity) || math.IsInf(trx.Quantity, 0) {
		return "non-finite quantity"
	}
	if trx.Quantity == 0 {
		return "zero quantity"
	}
	return ""
}

// MarshalZerologObject implement the log marshaller interface for zerolog
func (trx *Transaction) MarshalZerologObject(e *zerolog.Event) {
	e.Time("Date", trx.Date).Str("Ticker", trx.Ticker).Str("Action", string(trx.Action)).
		Float64("Quantity", trx.Quantity).Float64("Price", trx.Price).Str("SourceID", trx.SourceID)
}
